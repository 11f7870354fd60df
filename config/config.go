package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port    int
		OpsPort int // порт служебного сервера (health, metrics)
	}
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		DBName   string
	}
	JWT struct {
		SecretKey string
		ExpiresIn int // в часах
	}
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Redis struct {
		Addr     string
		Password string
		DB       int
	}
	Loan struct {
		DaysOverdueForDefault int // порог просрочки для перевода в дефолт, дни
		AllocationRetries     int // число повторов при конфликте конкурентного распределения
	}
	Payment struct {
		MaxRetries int // лимит автоматических повторов неуспешного платежа
	}
	ReceiptPrivateKey string // Приватный ключ для подписи квитанций
	ReceiptPublicKey  string // Публичный ключ для проверки подписи квитанций
	ReceiptHMACKey    string // Ключ для HMAC-подписи квитанций
}

// NewConfig создает новый экземпляр конфигурации. Значения читаются из
// переменных окружения, при их отсутствии применяются значения по
// умолчанию.
func NewConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Настройки сервера
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("OPS_PORT", 8081)

	// Настройки базы данных
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lending_db")

	// Настройки JWT
	v.SetDefault("JWT_SECRET_KEY", "your-secret-key-here")
	v.SetDefault("JWT_EXPIRES_IN", 24)

	// Настройки SMTP
	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "your-email@gmail.com")
	v.SetDefault("SMTP_PASSWORD", "your-app-password")
	v.SetDefault("SMTP_FROM", "your-email@gmail.com")

	// Настройки Redis
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	// Настройки кредитного учета
	v.SetDefault("LOAN_DAYS_OVERDUE_FOR_DEFAULT", 90)
	v.SetDefault("LOAN_ALLOCATION_RETRIES", 3)
	v.SetDefault("PAYMENT_MAX_RETRIES", 3)

	// Настройки квитанций
	v.SetDefault("RECEIPT_PRIVATE_KEY", "your-receipt-private-key-here")
	v.SetDefault("RECEIPT_PUBLIC_KEY", "your-receipt-public-key-here")
	v.SetDefault("RECEIPT_HMAC_KEY", "your-receipt-hmac-key-here")

	cfg := &Config{}
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.OpsPort = v.GetInt("OPS_PORT")

	cfg.DB.Host = v.GetString("DB_HOST")
	cfg.DB.Port = v.GetInt("DB_PORT")
	cfg.DB.User = v.GetString("DB_USER")
	cfg.DB.Password = v.GetString("DB_PASSWORD")
	cfg.DB.DBName = v.GetString("DB_NAME")

	cfg.JWT.SecretKey = v.GetString("JWT_SECRET_KEY")
	cfg.JWT.ExpiresIn = v.GetInt("JWT_EXPIRES_IN")

	cfg.SMTP.Host = v.GetString("SMTP_HOST")
	cfg.SMTP.Port = v.GetInt("SMTP_PORT")
	cfg.SMTP.Username = v.GetString("SMTP_USERNAME")
	cfg.SMTP.Password = v.GetString("SMTP_PASSWORD")
	cfg.SMTP.From = v.GetString("SMTP_FROM")

	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	cfg.Loan.DaysOverdueForDefault = v.GetInt("LOAN_DAYS_OVERDUE_FOR_DEFAULT")
	cfg.Loan.AllocationRetries = v.GetInt("LOAN_ALLOCATION_RETRIES")
	cfg.Payment.MaxRetries = v.GetInt("PAYMENT_MAX_RETRIES")

	cfg.ReceiptPrivateKey = v.GetString("RECEIPT_PRIVATE_KEY")
	cfg.ReceiptPublicKey = v.GetString("RECEIPT_PUBLIC_KEY")
	cfg.ReceiptHMACKey = v.GetString("RECEIPT_HMAC_KEY")

	if cfg.Loan.DaysOverdueForDefault < 1 {
		return nil, fmt.Errorf("некорректный порог просрочки для дефолта: %d", cfg.Loan.DaysOverdueForDefault)
	}
	if cfg.Payment.MaxRetries < 0 {
		return nil, fmt.Errorf("некорректный лимит повторов платежа: %d", cfg.Payment.MaxRetries)
	}

	return cfg, nil
}
