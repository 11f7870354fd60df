package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"lendingApp/config"
	"lendingApp/controllers"
	"lendingApp/database"
	"lendingApp/middleware"
	"lendingApp/services"
	"lendingApp/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// healthHandler возвращает состояние сервиса
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// newCounterStore выбирает хранилище счетчиков лимитера: Redis при
// заданном адресе, иначе память процесса
func newCounterStore(cfg *config.Config) utils.CounterStore {
	if cfg.Redis.Addr == "" {
		return utils.NewMemoryCounterStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return utils.NewRedisCounterStore(client, "ratelimit:")
}

// startOpsServer запускает служебный сервер с health и metrics
func startOpsServer(cfg *config.Config) {
	limiter := utils.NewRateLimiter(newCounterStore(cfg), 100, time.Minute)

	gin.SetMode(gin.ReleaseMode)
	ops := gin.New()
	ops.Use(middleware.Logger())
	ops.Use(middleware.Recovery())
	ops.Use(middleware.RateLimit(limiter, 100))

	ops.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	ops.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.OpsPort)
		log.Printf("Служебный сервер запущен на порту %s", addr)
		if err := ops.Run(addr); err != nil {
			log.Fatalf("Ошибка запуска служебного сервера: %v", err)
		}
	}()
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем подключение к базе данных
	db, err := database.NewDatabase(cfg)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}

	// Инициализируем сервисы
	emailService := services.NewEmailService(cfg)
	userService := services.NewUserService(db.DB)
	notifier := services.NewEmailNotifier(emailService, userService)
	loanService := services.NewLoanService(db.DB, notifier, cfg)
	receiptService := services.NewReceiptService(db.DB, cfg)
	paymentService := services.NewPaymentService(db.DB, loanService, notifier, receiptService, emailService, cfg)

	// Запускаем планировщик повторов и проверки просрочки
	scheduler := services.NewRetrySchedulerService(db.DB, loanService, paymentService)
	scheduler.Start()
	log.Println("Планировщик повторов запущен")

	// Запускаем служебный сервер
	startOpsServer(cfg)

	// Создаем роутер
	router := mux.NewRouter()

	// Инициализируем контроллеры
	authController := controllers.NewAuthController(db, cfg)
	loanController := controllers.NewLoanController(loanService)
	paymentController := controllers.NewPaymentController(paymentService, receiptService)

	// Публичные маршруты
	router.HandleFunc("/health", healthHandler).Methods("GET")
	router.HandleFunc("/api/auth/signUp", authController.SignUp).Methods("POST")
	router.HandleFunc("/api/auth/signIn", authController.SignIn).Methods("POST")

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(authController.GetJWTKey())))
	protected.Use(middleware.LoggingMiddleware)

	// Маршруты для работы с кредитами
	protected.HandleFunc("/loans", loanController.CreateLoan).Methods("POST")
	protected.HandleFunc("/loans", loanController.GetLoans).Methods("GET")
	protected.HandleFunc("/loans/{id}", loanController.GetLoan).Methods("GET")
	protected.HandleFunc("/loans/{id}/summary", loanController.GetLoanSummary).Methods("GET")
	protected.HandleFunc("/loans/{id}/transition", loanController.TransitionLoan).Methods("POST")
	protected.HandleFunc("/loans/{id}/terms", loanController.UpdateLoanTerms).Methods("PUT")

	// Маршруты для работы с платежами
	protected.HandleFunc("/payments", paymentController.InitiatePayment).Methods("POST")
	protected.HandleFunc("/payments/{paymentId}", paymentController.GetPayment).Methods("GET")
	protected.HandleFunc("/payments/{paymentId}/transition", paymentController.TransitionPayment).Methods("POST")
	protected.HandleFunc("/payments/{paymentId}/receipt", paymentController.GetReceipt).Methods("GET")
	protected.HandleFunc("/payments/{paymentId}/receipt/export", paymentController.ExportReceipt).Methods("GET")

	// Запускаем сервер
	port := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Сервер запущен на порту %s", port)
	if err := http.ListenAndServe(port, router); err != nil {
		log.Fatalf("Ошибка запуска сервера: %v", err)
	}
}
