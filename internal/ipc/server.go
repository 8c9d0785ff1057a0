package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"log/slog"

	"gridflow/internal/daemon"
	"gridflow/internal/jobs"
	"gridflow/internal/logging"
	"gridflow/internal/queue"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, sup *daemon.Supervisor, logger *slog.Logger) (*Server, error) {
	if sup == nil {
		return nil, errors.New("ipc server requires supervisor")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{supervisor: sup, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Gridflow", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually before restarting"))
	}
}

type service struct {
	supervisor *daemon.Supervisor
	logger     *slog.Logger
	ctx        context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.supervisor.Status(s.ctx)
	resp.Running = status.Running
	resp.Workers = status.Workers
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.PID = os.Getpid()

	stats, err := s.supervisor.QueueStats(s.ctx)
	if err != nil {
		return err
	}
	resp.QueueStats = make(map[string]int, len(stats))
	for status, count := range stats {
		resp.QueueStats[string(status)] = count
	}
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			return fmt.Errorf("unknown status %q", status)
		}
		statuses = append(statuses, parsed)
	}
	tasks, err := s.supervisor.ListTasks(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Tasks = make([]TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, FromTask(task))
	}
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.log().Debug("queue retry requested", logging.String(logging.FieldJobID, req.JobID))
	updated, err := s.supervisor.RetryFailed(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("failed tasks retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueClearCompleted(_ QueueClearCompletedRequest, resp *QueueClearCompletedResponse) error {
	removed, err := s.supervisor.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed tasks cleared",
		logging.String(logging.FieldEventType, "queue_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueReset(_ QueueResetRequest, resp *QueueResetResponse) error {
	updated, err := s.supervisor.ResetStuck(s.ctx)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("stuck tasks reset",
		logging.String(logging.FieldEventType, "queue_reset_stuck"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueRequeue(req QueueRequeueRequest, resp *QueueRequeueResponse) error {
	if strings.TrimSpace(req.JobID) == "" || strings.TrimSpace(req.Task) == "" {
		return errors.New("queue requeue requires a job id and task name")
	}
	if err := s.supervisor.RequeueTask(s.ctx, req.JobID, req.Task); err != nil {
		return err
	}
	resp.Requeued = true
	s.log().Info("task requeued",
		logging.String(logging.FieldEventType, "queue_requeue"),
		logging.String(logging.FieldJobID, req.JobID),
		logging.String(logging.FieldTask, req.Task))
	return nil
}

func (s *service) JobShow(req JobShowRequest, resp *JobShowResponse) error {
	job, tasks, err := s.supervisor.ShowJob(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Job = FromJob(job)
	resp.Tasks = make([]TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		resp.Tasks = append(resp.Tasks, FromTask(task))
	}
	return nil
}

func (s *service) JobList(_ JobListRequest, resp *JobListResponse) error {
	jobList, err := s.supervisor.ListJobs(s.ctx)
	if err != nil {
		return err
	}
	resp.Jobs = make([]JobSummary, 0, len(jobList))
	for _, job := range jobList {
		resp.Jobs = append(resp.Jobs, FromJob(job))
	}
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	def := jobs.Definition{
		ID:    req.ID,
		Label: req.Label,
		Spec:  req.Spec,
	}
	for _, ts := range req.Tasks {
		def.Tasks = append(def.Tasks, jobs.TaskDefinition{
			Name: ts.Name,
			Type: queue.TaskType(ts.Type),
			Spec: ts.Spec,
		})
	}
	job, err := s.supervisor.Submit(s.ctx, def)
	if err != nil {
		return err
	}
	resp.Job = FromJob(job)
	s.log().Info("job submitted via IPC",
		logging.String(logging.FieldEventType, "job_submit"),
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("task_count", len(req.Tasks)))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.supervisor.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
