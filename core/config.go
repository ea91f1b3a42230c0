package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Email      EmailConfig
		Attendance AttendanceConfig
		Digest     DigestConfig
	}

	ServerConfig struct {
		Host               string
		DebugHost          string
		DisableReqLogs     bool
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	EmailConfig struct {
		DefaultFrom    mail.Address
		SendgridApiKey string
	}

	AttendanceConfig struct {
		// StrictStatus rejects unrecognized statuses instead of defaulting them to Present.
		StrictStatus    bool
		StoreTimeout    time.Duration
		DefaultPageSize int
		MaxPageSize     int
	}

	DigestConfig struct {
		Enabled    bool
		Schedule   string // cron spec
		Recipients []mail.Address
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the environment name, e.g. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Rollcall")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "k1x-9#vq+0mz@t7w)r6p!h4c&2(e8u3s$l5j*b_a%ny^o=fd")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "rollcall")
	v.SetDefault("database.user", "rollcall")
	v.SetDefault("database.password", "rollcall")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("email.defaultFrom", "Rollcall <noreply@localhost>")
	v.SetDefault("email.sendgridApiKey", "")

	v.SetDefault("attendance.strictStatus", true)
	v.SetDefault("attendance.storeTimeout", 10*time.Second)
	v.SetDefault("attendance.defaultPageSize", 50)
	v.SetDefault("attendance.maxPageSize", 1000)

	v.SetDefault("digest.enabled", false)
	v.SetDefault("digest.schedule", "0 17 * * 1-5")
	v.SetDefault("digest.recipients", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(configDir(), ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	from, err := mail.ParseAddress(v.GetString("email.defaultFrom"))
	if err != nil {
		log.Fatalf("config: invalid email.defaultFrom: %v", err)
	}

	return &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			DebugHost:          v.GetString("server.debugHost"),
			DisableReqLogs:     v.GetBool("server.disableReqLogs"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Email: EmailConfig{
			DefaultFrom:    *from,
			SendgridApiKey: v.GetString("email.sendgridApiKey"),
		},
		Attendance: AttendanceConfig{
			StrictStatus:    v.GetBool("attendance.strictStatus"),
			StoreTimeout:    v.GetDuration("attendance.storeTimeout"),
			DefaultPageSize: v.GetInt("attendance.defaultPageSize"),
			MaxPageSize:     v.GetInt("attendance.maxPageSize"),
		},
		Digest: DigestConfig{
			Enabled:    v.GetBool("digest.enabled"),
			Schedule:   v.GetString("digest.schedule"),
			Recipients: parseAddressList(v.GetString("digest.recipients")),
		},
	}
}

// configDir is where the `.env.<env>` files live. Defaults to `./config`.
func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	return filepath.Join(wd, "config")
}

func parseAddressList(s string) []mail.Address {
	s = CleanString(s)
	if s == "" {
		return nil
	}
	list, err := mail.ParseAddressList(s)
	if err != nil {
		log.Fatalf("config: invalid address list %q: %v", s, err)
	}
	addrs := make([]mail.Address, 0, len(list))
	for _, a := range list {
		addrs = append(addrs, *a)
	}
	return addrs
}
