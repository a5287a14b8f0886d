package rl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/newthinker/aporte/internal/core"
	"github.com/newthinker/aporte/internal/storage/archive"
)

const checkpointVersion = 1

// checkpoint is the persisted agent. JSON keeps float64 values exact.
type checkpoint struct {
	Version   int         `json:"version"`
	Config    Config      `json:"config"`
	StateSize int         `json:"state_size"`
	Templates []Template  `json:"templates"`
	Online    *Network    `json:"online"`
	Target    *Network    `json:"target"`
	Steps     int         `json:"steps"`
	Updates   int         `json:"updates"`
	Episodes  int         `json:"episodes"`
	Buffer    bufferState `json:"buffer"`
	RNG       []byte      `json:"rng"`
}

// Marshal serializes the full agent state
func (a *Agent) Marshal() ([]byte, error) {
	rng, err := a.pcg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal rng: %w", err)
	}
	return json.Marshal(checkpoint{
		Version:   checkpointVersion,
		Config:    a.cfg,
		StateSize: a.stateSize,
		Templates: a.templates,
		Online:    a.online,
		Target:    a.target,
		Steps:     a.steps,
		Updates:   a.updates,
		Episodes:  a.episodes,
		Buffer:    a.buffer.snapshot(),
		RNG:       rng,
	})
}

// Unmarshal restores an agent serialized by Marshal
func Unmarshal(data []byte) (*Agent, error) {
	var cp checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, core.WrapError(core.ErrCheckpointInvalid, err)
	}
	if cp.Version != checkpointVersion {
		return nil, core.Errorf(core.ErrCheckpointInvalid, "unsupported version %d", cp.Version)
	}
	if err := cp.Config.Validate(); err != nil {
		return nil, core.WrapError(core.ErrCheckpointInvalid, err)
	}
	if err := cp.validateShapes(); err != nil {
		return nil, core.WrapError(core.ErrCheckpointInvalid, err)
	}
	pcg := &rand.PCG{}
	if err := pcg.UnmarshalBinary(cp.RNG); err != nil {
		return nil, core.WrapError(core.ErrCheckpointInvalid, err)
	}
	return &Agent{
		cfg:       cp.Config,
		stateSize: cp.StateSize,
		templates: cp.Templates,
		online:    cp.Online,
		target:    cp.Target,
		buffer:    restoreBuffer(cp.Buffer),
		pcg:       pcg,
		rng:       rand.New(pcg),
		steps:     cp.Steps,
		updates:   cp.Updates,
		episodes:  cp.Episodes,
	}, nil
}

func (cp checkpoint) validateShapes() error {
	if cp.Online == nil || cp.Target == nil {
		return fmt.Errorf("missing network")
	}
	if len(cp.Templates) == 0 {
		return fmt.Errorf("no templates")
	}
	for _, n := range []*Network{cp.Online, cp.Target} {
		if n.Inputs() != cp.StateSize || n.Outputs() != len(cp.Templates) {
			return fmt.Errorf("network shape %dx%d, want %dx%d", n.Inputs(), n.Outputs(), cp.StateSize, len(cp.Templates))
		}
		if len(n.W1) != cp.Config.Hidden || len(n.B1) != cp.Config.Hidden || len(n.B2) != len(cp.Templates) {
			return fmt.Errorf("network layer sizes do not match config")
		}
		for _, row := range n.W1 {
			if len(row) != cp.StateSize {
				return fmt.Errorf("ragged input layer")
			}
		}
		for _, row := range n.W2 {
			if len(row) != cp.Config.Hidden {
				return fmt.Errorf("ragged output layer")
			}
		}
	}
	if cp.Buffer.Capacity < 1 {
		return fmt.Errorf("buffer capacity %d", cp.Buffer.Capacity)
	}
	return nil
}

// Save writes the agent checkpoint to store
func (a *Agent) Save(ctx context.Context, store archive.Storage, path string) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	if err := store.Write(ctx, path, data); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", path, err)
	}
	return nil
}

// Load reads an agent checkpoint from store. A missing object yields
// ErrPolicyUnavailable.
func Load(ctx context.Context, store archive.Storage, path string) (*Agent, error) {
	data, err := store.Read(ctx, path)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, core.Errorf(core.ErrPolicyUnavailable, "no checkpoint at %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	return Unmarshal(data)
}
