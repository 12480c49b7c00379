package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/kartlab/kartbench/internal/evaluator"
	"github.com/kartlab/kartbench/internal/gitops"
	"github.com/kartlab/kartbench/internal/hostlink"
	"github.com/kartlab/kartbench/internal/result"
	"github.com/kartlab/kartbench/internal/sequencer"
	"github.com/kartlab/kartbench/internal/session"
	"github.com/kartlab/kartbench/internal/simhost"
	"github.com/kartlab/kartbench/internal/trainer"
	"github.com/kartlab/kartbench/internal/trajectory"
)

const (
	hostSim       = "sim"
	hostWebsocket = "ws"
)

var (
	flagHost   string
	flagAgent  string
	flagListen string
	flagDebug  bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <session.yaml>",
		Short: "Run a training and evaluation session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSession,
	}
	cmd.Flags().StringVar(&flagHost, "host", hostSim, "host runtime (sim, ws)")
	cmd.Flags().StringVar(&flagAgent, "agent", "kinematic", "candidate agent for the sim host (kinematic, ghost)")
	cmd.Flags().StringVar(&flagListen, "listen", "", "address the ws host listens on (default from config)")
	cmd.Flags().BoolVar(&flagDebug, "debug", false, "log every engine message")
	return cmd
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	sess, err := session.Load(args[0])
	if err != nil {
		return err
	}
	if flagHost != hostSim && flagHost != hostWebsocket {
		return fmt.Errorf("unknown host %q (want %s or %s)", flagHost, hostSim, hostWebsocket)
	}
	launcher, err := trainer.NewLauncher(cfg)
	if err != nil {
		return err
	}
	resultsLog, err := result.OpenLog(filepath.Join(cfg.Paths.ResultsDir, result.LogName))
	if err != nil {
		return err
	}
	runDir, err := result.CreateRunDir(cfg.Paths.ResultsDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Run directory: %s\n", runDir)

	meta := &result.RunMeta{
		ID:          uuid.New(),
		Session:     sess.Name,
		SessionFile: args[0],
		Host:        flagHost,
		Started:     time.Now().UTC(),
		Steps:       len(sess.Steps),
		Status:      result.StatusRunning,
	}
	recordTrainingRevision(cfg.Paths.TrainingDir, runDir, meta)
	if err := result.WriteRunMeta(runDir, meta); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()
	opts := sequencer.Options{
		Config:   cfg,
		Launcher: launcher,
		Sink:     resultsLog,
		Context:  ctx,
		Logger:   logger,
	}

	var (
		seq    *sequencer.Sequencer
		runErr error
	)
	switch flagHost {
	case hostSim:
		agent, err := newAgent(flagAgent)
		if err != nil {
			return err
		}
		loop := simhost.New(agent, cfg.Evaluation.FixedDeltaTime, logger)
		opts.Host, opts.Workspace, opts.Now = loop, loop, loop.Now
		seq = sequencer.New(opts)
		trackProgress(seq, meta)
		keepCandidates(seq, runDir, cfg.Evaluation.FixedDeltaTime)
		loop.Attach(seq)
		runErr = loop.Run(ctx, sess)
	case hostWebsocket:
		listen := flagListen
		if listen == "" {
			listen = cfg.Host.Listen
		}
		link := hostlink.New(sess, hostlink.Options{
			IdleTimeout: cfg.Host.IdleTimeout,
			Timescale:   cfg.Evaluation.Timescale,
			FixedDelta:  cfg.Evaluation.FixedDeltaTime,
			Logger:      logger,
			Debug:       flagDebug,
		})
		opts.Host, opts.Workspace = link, link
		seq = sequencer.New(opts)
		trackProgress(seq, meta)
		keepCandidates(seq, runDir, cfg.Evaluation.FixedDeltaTime)
		link.Attach(seq)
		runErr = serveEngine(ctx, cmd, listen, link)
	}

	meta.Finished = time.Now().UTC()
	switch {
	case runErr == nil:
		meta.Status = result.StatusCompleted
		meta.StepsCompleted = meta.Steps
	case errors.Is(runErr, context.Canceled):
		meta.Status = result.StatusStopped
	default:
		meta.Status = result.StatusFailed
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	if err := result.WriteRunMeta(runDir, meta); err != nil {
		logger.Printf("warning: writing run meta: %v", err)
	}
	if st := seq.Status(); st.Err != nil {
		logger.Printf("warning: last step error: %v", st.Err)
	}
	return runErr
}

// recordTrainingRevision notes the training dir's commit and saves any
// uncommitted trainer config changes next to the run meta.
func recordTrainingRevision(trainingDir, runDir string, meta *result.RunMeta) {
	if !gitops.IsRepo(trainingDir) {
		return
	}
	rev, err := gitops.Revision(trainingDir)
	if err != nil {
		log.Printf("warning: %v", err)
		return
	}
	meta.TrainingRevision = rev
	diff, err := gitops.CaptureChanges(trainingDir)
	if err != nil {
		log.Printf("warning: %v", err)
		return
	}
	if len(diff) > 0 {
		if err := os.WriteFile(filepath.Join(runDir, "training.patch"), diff, 0o644); err != nil {
			log.Printf("warning: writing training.patch: %v", err)
		}
	}
}

func serveEngine(ctx context.Context, cmd *cobra.Command, listen string, link *hostlink.Link) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Waiting for the engine on ws://%s\n", ln.Addr())
	return hostlink.ServeOne(ctx, ln, func(ctx context.Context, conn *websocket.Conn) error {
		return link.Serve(ctx, conn)
	})
}

// trackProgress keeps meta.StepsCompleted at the number of steps dispatched
// before the current one and logs each evaluation pass as it starts.
func trackProgress(seq *sequencer.Sequencer, meta *result.RunMeta) {
	seq.OnStepDispatched = func(index int, step session.Step) {
		meta.StepsCompleted = index
		log.Printf("step %d: %s", index, session.Describe(step))
	}
	var (
		lastEv   *evaluator.Evaluator
		lastPass int
	)
	seq.OnTick = func() {
		ev := seq.Current()
		if ev == nil || ev.State() == evaluator.Idle || ev.State() == evaluator.Done {
			return
		}
		p := ev.Progress()
		if ev == lastEv && p.Pass == lastPass {
			return
		}
		lastEv, lastPass = ev, p.Pass
		log.Printf("  pass %d of %d over %d windows", p.Pass+1, p.Passes, p.Windows)
	}
}

// keepCandidates saves the trajectories driven during each evaluation into
// the run directory.
func keepCandidates(seq *sequencer.Sequencer, runDir string, timestep time.Duration) {
	seq.OnEvaluated = func(index int, file string, ev *evaluator.Evaluator) {
		paths, err := result.SaveCandidates(runDir, index, file, ev.Candidates(), timestep)
		if err != nil {
			log.Printf("warning: %v", err)
			return
		}
		log.Printf("step %d: saved %d candidate trajectories for %s", index, len(paths), filepath.Base(file))
	}
}

// newAgent builds the sim host's candidate. A ghost starts without a
// reference; the loop hands it one per evaluation.
func newAgent(name string) (simhost.Agent, error) {
	switch name {
	case "kinematic":
		return &simhost.Kinematic{}, nil
	case "ghost":
		return simhost.NewGhost(trajectory.Trajectory{}), nil
	}
	return nil, fmt.Errorf("unknown agent %q (want kinematic or ghost)", name)
}

// agentFactory is newAgent for batch evaluations, which know each reference
// up front.
func agentFactory(name string) (func(ref trajectory.Trajectory) simhost.Agent, error) {
	if _, err := newAgent(name); err != nil {
		return nil, err
	}
	return func(ref trajectory.Trajectory) simhost.Agent {
		if name == "ghost" {
			return simhost.NewGhost(ref)
		}
		return &simhost.Kinematic{}
	}, nil
}
