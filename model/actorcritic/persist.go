package actorcritic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/sw965/brawler/blas32/vector"
	"github.com/sw965/brawler/model/mlp"
	"gonum.org/v1/gonum/blas/blas32"
)

const ModelFileName = "model.json"

type LayerCheckpoint struct {
	Rows   int       `json:"rows"`
	Cols   int       `json:"cols"`
	Weight []float32 `json:"weight"`
	Bias   []float32 `json:"bias"`
}

// Checkpoint holds architecture and weights only. Optimizer state is not
// persisted.
type Checkpoint struct {
	ObsSize    int               `json:"obsSize"`
	ActionSize int               `json:"actionSize"`
	HiddenSize int               `json:"hiddenSize"`
	Layers     []LayerCheckpoint `json:"layers"`
}

func (p *Policy) Checkpoint() Checkpoint {
	c := Checkpoint{
		ObsSize:    p.cfg.ObsSize,
		ActionSize: p.cfg.ActionSize,
		HiddenSize: p.cfg.HiddenSize,
	}
	for _, param := range p.parameters() {
		if param.IsEmpty() {
			continue
		}
		c.Layers = append(c.Layers, LayerCheckpoint{
			Rows:   param.Weight.Rows,
			Cols:   param.Weight.Cols,
			Weight: slices.Clone(param.Weight.Data),
			Bias:   slices.Clone(param.Bias.Data),
		})
	}
	return c
}

func (c Checkpoint) expectedShapes() [][2]int {
	h := c.HiddenSize
	return [][2]int{
		{c.ObsSize, h},
		{h, h},
		{h, c.ActionSize},
		{h, 1},
	}
}

func (c Checkpoint) parameter(i int) (mlp.Parameter, error) {
	shape := c.expectedShapes()[i]
	l := c.Layers[i]
	if l.Rows != shape[0] || l.Cols != shape[1] || len(l.Weight) != l.Rows*l.Cols || len(l.Bias) != l.Cols {
		return mlp.Parameter{}, fmt.Errorf("%w: layer %d has shape %dx%d (%d weights, %d biases), want %dx%d",
			ErrConfiguration, i, l.Rows, l.Cols, len(l.Weight), len(l.Bias), shape[0], shape[1])
	}
	return mlp.Parameter{
		Weight: blas32.General{Rows: l.Rows, Cols: l.Cols, Stride: l.Cols, Data: slices.Clone(l.Weight)},
		Bias:   vector.FromSlice(slices.Clone(l.Bias)),
	}, nil
}

func FromCheckpoint(c Checkpoint, lr float32) (*Policy, error) {
	cfg := Config{
		ObsSize:      c.ObsSize,
		ActionSize:   c.ActionSize,
		HiddenSize:   c.HiddenSize,
		LearningRate: lr,
	}.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(c.Layers) != 4 {
		return nil, fmt.Errorf("%w: checkpoint has %d dense layers, want 4", ErrConfiguration, len(c.Layers))
	}

	params := make([]mlp.Parameter, 4)
	for i := range params {
		param, err := c.parameter(i)
		if err != nil {
			return nil, err
		}
		params[i] = param
	}

	p := &Policy{cfg: cfg}
	p.trunk.AppendAffineParameter(params[0])
	p.trunk.AppendReLU()
	p.trunk.AppendAffineParameter(params[1])
	p.trunk.AppendReLU()
	p.policyHead.AppendAffineParameter(params[2])
	p.valueHead.AppendAffineParameter(params[3])
	p.optimizer = newOptimizer(p)
	return p, nil
}

// Save writes dir/model.json, creating dir if needed. The file is written to a
// temporary name first and renamed into place.
func (p *Policy) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	data, err := json.Marshal(p.Checkpoint())
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return WriteFileAtomic(filepath.Join(dir, ModelFileName), data)
}

// Load reads dir/model.json. A model whose observation or action size differs
// from the expected sizes yields ErrConfiguration. Zero expected sizes skip
// the check.
func Load(dir string, obsSize, actionSize int, lr float32) (*Policy, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModelFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if obsSize > 0 && c.ObsSize != obsSize {
		return nil, fmt.Errorf("%w: saved model observation size %d, encoder produces %d", ErrConfiguration, c.ObsSize, obsSize)
	}
	if actionSize > 0 && c.ActionSize != actionSize {
		return nil, fmt.Errorf("%w: saved model action size %d, action space has %d", ErrConfiguration, c.ActionSize, actionSize)
	}
	return FromCheckpoint(c, lr)
}

func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
