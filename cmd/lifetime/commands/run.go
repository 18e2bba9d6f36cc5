package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gocrud/lifetime/di"
	"github.com/gocrud/lifetime/hosting"
	"github.com/gocrud/lifetime/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	runInterval time.Duration
	runDuration time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demonstration host",
	Long: `Starts a host whose worker opens a child lifetime scope per tick, resolves a
request-scoped unit of work from it and disposes the scope again.
Stops on SIGINT/SIGTERM or after --duration.`,
	RunE: runHost,
}

func init() {
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Second, "Interval between units of work")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runHost(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	if runInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	logger := opts.NewLoggerFactory(cmd.OutOrStdout()).CreateLogger("demo")
	registry, err := demoRegistry(runInterval, logger)
	if err != nil {
		return err
	}

	host, err := hosting.Bootstrap(registry, hosting.Settings{
		Config:   opts,
		Output:   cmd.OutOrStdout(),
		Registry: prometheus.DefaultRegisterer,
	}, hosting.Hosted[*hosting.TimedHostedService]())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	return host.Run(ctx)
}

// clock 单例，记录处理过的工作单元数
type clock struct {
	ticks atomic.Int64
}

// unitOfWork 每个子作用域一个，作用域释放时关闭
type unitOfWork struct {
	id     int64
	logger logging.Logger
}

func (u *unitOfWork) Close() error {
	u.logger.Info(fmt.Sprintf("Unit of work %d closed", u.id))
	return nil
}

// runUnitOfWork 每个周期在独立的子作用域中解析并执行一个工作单元
func runUnitOfWork(logger logging.Logger) hosting.ScopedTask {
	return func(_ context.Context, scope *di.LifetimeScope) error {
		work, err := di.Resolve[*unitOfWork](scope)
		if err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Unit of work %d running in scope %s", work.id, scope.ID()))
		return nil
	}
}

func demoRegistry(interval time.Duration, logger logging.Logger) (*di.ComponentRegistry, error) {
	clockReg, err := di.Provide(func(di.ResolveContext) (*clock, error) {
		return &clock{}, nil
	}, di.SingleInstance())
	if err != nil {
		return nil, err
	}

	workReg, err := di.Provide(func(ctx di.ResolveContext) (*unitOfWork, error) {
		c, err := di.Resolve[*clock](ctx)
		if err != nil {
			return nil, err
		}
		return &unitOfWork{id: c.ticks.Add(1), logger: logger}, nil
	}, di.InstancePerLifetimeScope())
	if err != nil {
		return nil, err
	}

	tickerReg, err := di.Provide(func(ctx di.ResolveContext) (*hosting.TimedHostedService, error) {
		return hosting.NewTimedHostedService("ticker", interval, ctx.Scope().Root(), runUnitOfWork(logger), logger), nil
	}, di.SingleInstance())
	if err != nil {
		return nil, err
	}

	return di.NewComponentRegistry(clockReg, workReg, tickerReg)
}
