package content

// CVData 表示存储在 CV Data(JSONB) 中的结构化数据。
// 已知区块使用具名字段，其余顶层键原样保存在 Extensions 中，编码时平铺回顶层。
type CVData struct {
	Personal       Personal        `json:"personal"`
	Education      []Education     `json:"education"`
	Experience     []Experience    `json:"experience"`
	Skills         []Skill         `json:"skills"`
	Languages      []Language      `json:"languages"`
	Interests      []string        `json:"interests"`
	CustomSections []CustomSection `json:"customSections,omitempty"`
	Extensions     map[string]any  `json:"-"`
}

// Personal 描述简历头部的个人信息。
type Personal struct {
	FullName string `json:"fullName"`
	JobTitle string `json:"jobTitle"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	Website  string `json:"website"`
	LinkedIn string `json:"linkedin"`
	Summary  string `json:"summary"`
	PhotoKey string `json:"photoKey,omitempty"`
}

type Education struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree"`
	Field       string `json:"field"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Current     bool   `json:"current"`
	Description string `json:"description"`
}

type Experience struct {
	Company     string   `json:"company"`
	Position    string   `json:"position"`
	Location    string   `json:"location"`
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	Current     bool     `json:"current"`
	Description string   `json:"description"`
	Highlights  []string `json:"highlights,omitempty"`
}

type Skill struct {
	Name  string `json:"name"`
	Level string `json:"level,omitempty"`
}

type Language struct {
	Name        string `json:"name"`
	Proficiency string `json:"proficiency,omitempty"`
}

// CustomSection 是用户自建的区块，Items 为自由文本。
type CustomSection struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Items []string `json:"items"`
}

// CoverLetterData 表示求职信正文。
type CoverLetterData struct {
	Recipient  Recipient      `json:"recipient"`
	Sender     Sender         `json:"sender"`
	Subject    string         `json:"subject"`
	Date       string         `json:"date"`
	Greeting   string         `json:"greeting"`
	Body       string         `json:"body"`
	Closing    string         `json:"closing"`
	Signature  string         `json:"signature"`
	Extensions map[string]any `json:"-"`
}

type Recipient struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company string `json:"company"`
	Address string `json:"address"`
}

type Sender struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// DefaultSectionOrder 是新建 CV 时的区块顺序。
func DefaultSectionOrder() []string {
	return []string{"personal", "experience", "education", "skills", "languages", "interests"}
}
