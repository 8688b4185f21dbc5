package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/imyashkale/deviceserver/internal/config"
	"github.com/imyashkale/deviceserver/internal/database"
	"github.com/imyashkale/deviceserver/internal/greengrass"
	"github.com/imyashkale/deviceserver/internal/handlers"
	"github.com/imyashkale/deviceserver/internal/logger"
	"github.com/imyashkale/deviceserver/internal/models"
	"github.com/imyashkale/deviceserver/internal/queue"
	"github.com/imyashkale/deviceserver/internal/repository"
	"github.com/imyashkale/deviceserver/internal/router"
	"github.com/imyashkale/deviceserver/internal/services"
)

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()
	logger.Init(cfg.LogLevel)
	log.Println("Configuration loaded successfully")

	// Create DynamoDB client
	dbClient, err := database.NewClient(ctx, &database.Config{Region: cfg.AWSRegion})
	if err != nil {
		log.Fatalf("Failed to initialize DynamoDB client: %v", err)
	}

	for _, table := range []string{
		cfg.TasksTableName,
		cfg.DevicesTableName,
		cfg.GroupsTableName,
		cfg.TemplatesTableName,
	} {
		if err := dbClient.VerifyTable(ctx, table); err != nil {
			log.Printf("Warning: could not verify table %s: %v", table, err)
		}
	}
	log.Println("DynamoDB client initialized successfully")

	// Initialize repositories
	taskRepo := repository.NewTaskRepository(database.NewTaskOperations(dbClient, cfg.TasksTableName))
	deviceRepo := repository.NewDeviceRepository(database.NewDeviceOperations(dbClient, cfg.DevicesTableName))
	groupRepo := repository.NewGroupRepository(database.NewGroupOperations(dbClient, cfg.GroupsTableName))
	templateRepo := repository.NewTemplateRepository(database.NewTemplateOperations(dbClient, cfg.TemplatesTableName))
	log.Println("Repositories initialized with DynamoDB backend")

	// Load AWS configuration for the control-plane clients
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Failed to load AWS configuration: %v", err)
	}

	controlPlane := greengrass.NewGroupVersionClient(awsCfg)
	things := greengrass.NewThingClient(awsCfg)
	log.Println("Greengrass control-plane clients initialized")

	// Select the queue transport: SQS when a queue URL is configured,
	// in-process channel queue otherwise.
	var publisher queue.Publisher
	var taskQueue *queue.TaskQueue
	if cfg.TaskQueueURL != "" {
		publisher = queue.NewSQSPublisher(awsCfg, cfg.TaskQueueURL)
		log.Println("Task queue initialized (SQS)")
	} else {
		taskQueue = queue.NewTaskQueue(cfg.QueueBufferSize)
		publisher = taskQueue
		log.Println("Task queue initialized (in-process)")
	}

	// Initialize association service
	associationService := services.NewAssociationService(
		taskRepo,
		deviceRepo,
		groupRepo,
		templateRepo,
		publisher,
		controlPlane,
		things,
	)
	log.Println("Association service initialized")

	// Start the consumer side
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	var workerPool *queue.WorkerPool
	handle := func(task *models.DeviceTaskSummary) {
		associationService.AssociateDevicesWithGroup(consumerCtx, task)
	}
	if cfg.TaskQueueURL != "" {
		consumer := queue.NewSQSConsumer(awsCfg, cfg.TaskQueueURL)
		go consumer.Run(consumerCtx, handle)
		log.Println("SQS consumer started")
	} else {
		workerPool = queue.NewWorkerPool(taskQueue, cfg.WorkerCount)
		workerPool.Start(handle)
		log.Printf("Worker pool started with %d workers", cfg.WorkerCount)
	}

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	taskHandler := handlers.NewDeviceTaskHandler(associationService)

	// Setup router
	r := router.Setup(healthHandler, taskHandler)

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server gracefully...")

		if taskQueue != nil {
			taskQueue.Close()
			log.Println("Task queue closed, waiting for workers to finish...")
			workerPool.Wait()
			log.Println("All workers stopped")
		}
		cancelConsumer()

		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
