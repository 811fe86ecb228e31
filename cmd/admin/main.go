package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"cvbuilder/internal/auth"
	"cvbuilder/internal/config"
	"cvbuilder/internal/database"
	"cvbuilder/internal/subscription"
)

type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslmode  string
}

func main() {
	var flags dbFlags
	rootCmd := &cobra.Command{
		Use:           "cvadmin",
		Short:         "cvbuilder 运维命令",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	pf.IntVar(&flags.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	pf.StringVar(&flags.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	pf.StringVar(&flags.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	pf.StringVar(&flags.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	pf.StringVar(&flags.sslmode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")

	rootCmd.AddCommand(createAdminCmd(&flags))
	rootCmd.AddCommand(sweepCmd(&flags))
	rootCmd.AddCommand(fixDurationsCmd(&flags))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createAdminCmd(flags *dbFlags) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "创建初始管理员账号，随机密码只显示一次",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return errors.New("missing required flag: --email")
			}
			db, err := openDatabase(flags)
			if err != nil {
				return err
			}

			var existing database.User
			switch err := db.Unscoped().Where("email = ?", email).First(&existing).Error; {
			case err == nil:
				return fmt.Errorf("user %q already exists", email)
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return fmt.Errorf("query user: %w", err)
			}

			password, err := generateRandomPassword(24)
			if err != nil {
				return err
			}
			hashed, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			user := database.User{
				Name:         strings.TrimSpace(name),
				Email:        email,
				PasswordHash: hashed,
				Role:         database.RoleAdmin,
				Status:       database.StatusActive,
			}
			if err := db.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "已创建管理员账号：\n")
			fmt.Fprintf(out, "邮箱: %s\n", email)
			fmt.Fprintf(out, "初始密码: %s\n", password)
			fmt.Fprintf(out, "提示：请立即登录并修改密码（该密码仅显示一次）。\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "管理员邮箱（必填）")
	cmd.Flags().StringVar(&name, "name", "Administrator", "显示名称")
	return cmd
}

func sweepCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "把已过期的有效订阅标记为 expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := subscriptionService(flags)
			if err != nil {
				return err
			}
			n, err := subs.ExpireOverdue(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d subscriptions\n", n)
			return nil
		},
	}
}

func fixDurationsCmd(flags *dbFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fix-durations",
		Short: "按套餐时长重新计算有效订阅的到期时间",
		RunE: func(cmd *cobra.Command, args []string) error {
			subs, err := subscriptionService(flags)
			if err != nil {
				return err
			}
			n, err := subs.FixDurations(context.Background())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fixed %d subscriptions\n", n)
			return nil
		},
	}
}

// subscriptionService 只用到时长与状态，价格目录留空。
func subscriptionService(flags *dbFlags) (*subscription.Service, error) {
	db, err := openDatabase(flags)
	if err != nil {
		return nil, err
	}
	return subscription.NewService(db, subscription.NewCatalog(config.PlanPrices{}, "")), nil
}

func openDatabase(flags *dbFlags) (*gorm.DB, error) {
	dbCfg, err := loadDatabaseConfig(*flags)
	if err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	db, err := database.InitDatabase(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func loadDatabaseConfig(f dbFlags) (config.DatabaseConfig, error) {
	cfg := config.DatabaseConfig{
		Host:     firstSet(f.host, os.Getenv("DATABASE_HOST"), "localhost"),
		Port:     f.port,
		Name:     firstSet(f.name, os.Getenv("POSTGRES_DB")),
		User:     firstSet(f.user, os.Getenv("POSTGRES_USER")),
		Password: firstSet(f.password, os.Getenv("POSTGRES_PASSWORD")),
		SSLMode:  firstSet(f.sslmode, os.Getenv("DATABASE_SSLMODE"), "disable"),
	}
	if cfg.Port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			cfg.Port = p
		}
	}
	if cfg.Port <= 0 {
		cfg.Port = 5432
	}

	if cfg.Name == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if cfg.User == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if cfg.Password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}
	return cfg, nil
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
