package trainer

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/kartlab/kartbench/internal/config"
)

const (
	containerTrainingDir = "/training"
	containerActivation  = "/opt/kartbench/activate"
)

// DockerLauncher runs the launcher script inside a container with the
// training directory bind-mounted.
type DockerLauncher struct {
	Image       string
	CPULimit    float64
	MemoryLimit int64
	UserID      string
}

func NewDockerLauncher(d config.Docker) (*DockerLauncher, error) {
	l := &DockerLauncher{
		Image:    d.Image,
		CPULimit: d.CPULimit,
		UserID:   fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}
	if d.MemoryLimit != "" {
		mem, err := units.RAMInBytes(d.MemoryLimit)
		if err != nil {
			return nil, fmt.Errorf("parsing docker memory_limit: %w", err)
		}
		l.MemoryLimit = mem
	}
	return l, nil
}

// ContainerCommand is the command run inside the container. The activation
// script is mounted at a fixed path.
func (l *DockerLauncher) ContainerCommand(inv *Invocation) []string {
	args := inv.Args()
	args[0] = containerActivation
	return append([]string{"bash", containerTrainingDir + "/" + inv.Script}, args...)
}

func (l *DockerLauncher) hostConfig(inv *Invocation) (*container.HostConfig, error) {
	workDir, err := filepath.Abs(inv.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving training dir: %w", err)
	}
	activation, err := filepath.Abs(inv.Activation)
	if err != nil {
		return nil, fmt.Errorf("resolving activation script: %w", err)
	}
	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: workDir, Target: containerTrainingDir},
			{Type: mount.TypeBind, Source: activation, Target: containerActivation, ReadOnly: true},
		},
		Init: &initTrue,
		// The trainer connects back to the engine listening on the host.
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
	}
	if l.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(l.CPULimit * 1e9)
	}
	if l.MemoryLimit > 0 {
		hostCfg.Memory = l.MemoryLimit
	}
	return hostCfg, nil
}

func (l *DockerLauncher) Launch(ctx context.Context, inv *Invocation) (Process, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	hostCfg, err := l.hostConfig(inv)
	if err != nil {
		cli.Close()
		return nil, err
	}
	envSlice := make([]string, 0, len(inv.Env))
	for k, v := range inv.Env {
		envSlice = append(envSlice, k+"="+v)
	}
	containerCfg := &container.Config{
		Image:      l.Image,
		Cmd:        l.ContainerCommand(inv),
		Env:        envSlice,
		WorkingDir: containerTrainingDir,
		Labels:     map[string]string{"kartbench": "true", "kartbench.run_id": inv.RunID},
	}
	if l.UserID != "" {
		containerCfg.User = l.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("starting container: %w", err)
	}

	p := &dockerProcess{cli: cli, id: containerID, done: make(chan struct{})}
	go p.wait(ctx, inv)
	return p, nil
}

type dockerProcess struct {
	cli  *client.Client
	id   string
	done chan struct{}
	err  error
}

func (p *dockerProcess) wait(ctx context.Context, inv *Invocation) {
	defer close(p.done)
	defer p.cli.Close()
	defer func() {
		p.cli.ContainerRemove(context.Background(), p.id, client.ContainerRemoveOptions{Force: true})
	}()

	waitResult := p.cli.ContainerWait(ctx, p.id, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				p.err = fmt.Errorf("waiting for trainer container: %w", err)
				p.saveLogs(inv)
				return
			}
			// nil error means no error on this channel; wait for result
		case status := <-waitResult.Result:
			if status.StatusCode != 0 {
				p.err = fmt.Errorf("trainer exited with code %d", status.StatusCode)
			}
			p.saveLogs(inv)
			return
		}
	}
}

func (p *dockerProcess) saveLogs(inv *Invocation) {
	logReader, _ := p.cli.ContainerLogs(context.Background(), p.id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if logReader == nil {
		return
	}
	defer logReader.Close()
	if err := os.MkdirAll(inv.LogDir, 0o755); err != nil {
		log.Printf("warning: creating trainer log dir: %v", err)
		return
	}
	f, err := os.Create(filepath.Join(inv.LogDir, "trainer-"+inv.RunID+".log"))
	if err != nil {
		log.Printf("warning: writing trainer log: %v", err)
		return
	}
	defer f.Close()
	if err := copyLogs(f, logReader); err != nil {
		log.Printf("warning: copying trainer log: %v", err)
	}
}

// copyLogs demultiplexes a container log stream, stdout and stderr
// interleaved, into w.
func copyLogs(w io.Writer, logs io.Reader) error {
	_, err := stdcopy.StdCopy(w, w, logs)
	return err
}

func (p *dockerProcess) Done() <-chan struct{} { return p.done }

func (p *dockerProcess) Err() error { return p.err }

func (p *dockerProcess) Stop() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	p.cli.ContainerKill(context.Background(), p.id, client.ContainerKillOptions{Signal: "SIGKILL"})
	<-p.done
	return nil
}
