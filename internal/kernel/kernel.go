// Package kernel wires the orchestration kernel's components (Registry,
// Guard, Router, Memory Store, Checkpoint Manager, Target Resolver, and a
// Terminal Backend) into one unit a transport can drive, grounded on how
// gastown's internal/cmd builds its single persistent set of managers once
// at process start and hands them to every subcommand.
package kernel

import (
	"fmt"

	"github.com/gastown-labs/orchkernel/internal/checkpoint"
	"github.com/gastown-labs/orchkernel/internal/config"
	"github.com/gastown-labs/orchkernel/internal/memory"
	"github.com/gastown-labs/orchkernel/internal/paneguard"
	"github.com/gastown-labs/orchkernel/internal/registry"
	"github.com/gastown-labs/orchkernel/internal/router"
	"github.com/gastown-labs/orchkernel/internal/target"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// Kernel bundles every component a transport needs, constructed once and
// shared across requests.
type Kernel struct {
	Config   *config.Config
	Backend  terminal.Backend
	Registry *registry.Registry
	Guard    *paneguard.Guard
	Resolver *target.Resolver
	Router   *router.Router
	Mailbox  *router.Mailbox
	Memory   memory.Store
	Checkpoints *checkpoint.Manager
}

// Open constructs a Kernel from cfg, creating backing stores per the
// configured backend selection.
func Open(cfg *config.Config, backend terminal.Backend) (*Kernel, error) {
	guard := paneguard.New(cfg.FocusCooldown())

	reg := registry.New(cfg.DataDir,
		registry.WithLockNotifier(guard),
		registry.WithHistoryCapacity(cfg.Capacities.MessageHistory),
	)
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	resolver := target.New(reg, backend)

	store, err := openMemoryStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening memory store: %w", err)
	}

	checkpointer, err := openCheckpointer(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening checkpointer: %w", err)
	}
	manager := checkpoint.NewManager(checkpointer,
		checkpoint.WithAutoCheckpoint(cfg.Checkpoint.AutoCheckpoint),
		checkpoint.WithCheckpointInterval(cfg.Checkpoint.Interval),
	)

	rt := router.New(router.WithDedup(cfg.Capacities.RouterDedup))

	return &Kernel{
		Config:      cfg,
		Backend:     backend,
		Registry:    reg,
		Guard:       guard,
		Resolver:    resolver,
		Router:      rt,
		Mailbox:     router.NewMailbox(cfg.DataDir),
		Memory:      store,
		Checkpoints: manager,
	}, nil
}

func openMemoryStore(cfg *config.Config) (memory.Store, error) {
	if cfg.Memory.Backend == config.BackendIndexed {
		return memory.NewSQLStore(cfg.Memory.Path)
	}
	return memory.NewFlatStore(cfg.Memory.Path)
}

func openCheckpointer(cfg *config.Config) (checkpoint.Checkpointer, error) {
	if cfg.Checkpoint.Backend == config.BackendIndexed {
		return checkpoint.NewSQLCheckpointer(cfg.Checkpoint.Path)
	}
	return checkpoint.NewFileCheckpointer(cfg.Checkpoint.Path)
}

// Close releases any held resources (the memory store's database handle).
func (k *Kernel) Close() error {
	return k.Memory.Close()
}

// SaveCheckpoint snapshots the current registry state through the
// checkpoint manager (spec §4.E create(), triggered explicitly rather than
// by the auto-checkpoint counter).
func (k *Kernel) SaveCheckpoint(trigger string) (checkpoint.Checkpoint, error) {
	state := k.Registry.SaveState()
	return k.Checkpoints.Create(nil, &state, trigger, nil)
}

// RestoreCheckpoint loads a checkpoint (latest, if id is empty) and applies
// its registry snapshot.
func (k *Kernel) RestoreCheckpoint(id string) (*checkpoint.Checkpoint, error) {
	cp, err := k.Checkpoints.Restore(id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	if cp.Registry != nil {
		if err := k.Registry.LoadState(*cp.Registry); err != nil {
			return nil, fmt.Errorf("applying checkpoint registry state: %w", err)
		}
	}
	return cp, nil
}
