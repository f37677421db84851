package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/tasks"
)

// Server 封装了 Asynq Worker Server 的启动和关闭逻辑。
type Server struct {
	server       *asynq.Server
	regenHandler *BoardRegenerateHandler
	log          *logrus.Entry
}

// NewServer 创建 Worker Server 实例。
func NewServer(redisOpt asynq.RedisClientOpt, regenHandler *BoardRegenerateHandler, logger *logrus.Logger) *Server {
	if regenHandler == nil {
		panic("BoardRegenerateHandler cannot be nil for worker Server")
	}
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	return &Server{
		server:       server,
		regenHandler: regenHandler,
		log:          logEntry,
	}
}

// Start 运行 Worker Server，应在单独的 goroutine 中调用。
func (s *Server) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeBoardRegenerate, s.regenHandler.ProcessTask)

	s.log.Info("Worker server starting...")
	if err := s.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			s.log.Fatalf("Could not run worker server: %v", err)
		}
		s.log.Info("Worker server stopped.")
	}
}

// Shutdown 优雅地关闭 Worker Server。
func (s *Server) Shutdown() {
	s.log.Info("Shutting down worker server...")
	s.server.Shutdown()
	s.log.Info("Worker server shut down complete.")
}
