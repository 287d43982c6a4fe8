package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	// ArtifactFileName is the name of the forest artifact inside a model directory.
	ArtifactFileName = "model.json"

	KindRandomForest = "random_forest_regressor"
	KindDecisionTree = "decision_tree_regressor"
)

var (
	ErrInvalidArtifact = errors.New("invalid model artifact")
)

// Node is a single tree node. Splits send x[Feature] <= Threshold left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Leaf      bool    `json:"leaf"`
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Artifact is the serialized form of a forest.
type Artifact struct {
	Kind         string   `json:"kind"`
	NFeatures    int      `json:"n_features"`
	FeatureNames []string `json:"feature_names,omitempty"`
	Trees        []Tree   `json:"trees"`
}

// Forest is a regression forest. The prediction is the mean of its trees.
type Forest struct {
	kind      string
	nFeatures int
	trees     []Tree
}

// NewForest validates the artifact and returns a forest that owns a copy of its trees.
func NewForest(a *Artifact) (*Forest, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: artifact is nil", ErrInvalidArtifact)
	}

	switch a.Kind {
	case KindRandomForest:
	case KindDecisionTree:
		if len(a.Trees) != 1 {
			return nil, fmt.Errorf("%w: %s requires exactly one tree, got %d", ErrInvalidArtifact, a.Kind, len(a.Trees))
		}
	default:
		return nil, fmt.Errorf("%w: unsupported kind %q", ErrInvalidArtifact, a.Kind)
	}

	if a.NFeatures < 1 {
		return nil, fmt.Errorf("%w: n_features must be positive, got %d", ErrInvalidArtifact, a.NFeatures)
	}

	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("%w: no trees", ErrInvalidArtifact)
	}

	trees := make([]Tree, len(a.Trees))
	for i, t := range a.Trees {
		if err := validateTree(t, a.NFeatures); err != nil {
			return nil, fmt.Errorf("%w: tree %d: %w", ErrInvalidArtifact, i, err)
		}
		trees[i] = Tree{Nodes: append([]Node(nil), t.Nodes...)}
	}

	return &Forest{
		kind:      a.Kind,
		nFeatures: a.NFeatures,
		trees:     trees,
	}, nil
}

// Children always point forward, so traversal terminates.
func validateTree(t Tree, nFeatures int) error {
	if len(t.Nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid left child %d", i, n.Left)
		}
		if n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: invalid right child %d", i, n.Right)
		}
	}
	return nil
}

// Kind returns the artifact kind the forest was built from.
func (f *Forest) Kind() string {
	return f.kind
}

// NumFeatures returns the expected sample width.
func (f *Forest) NumFeatures() int {
	return f.nFeatures
}

// NumTrees returns the number of trees in the forest.
func (f *Forest) NumTrees() int {
	return len(f.trees)
}

// Predict returns one value per sample.
func (f *Forest) Predict(x FeatureVector) ([]float64, error) {
	if len(x) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([]float64, len(x))
	for i, sample := range x {
		if len(sample) != f.nFeatures {
			return nil, fmt.Errorf("sample %d has %d features, model expects %d", i, len(sample), f.nFeatures)
		}
		sum := 0.0
		for _, t := range f.trees {
			sum += t.eval(sample)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}

func (t Tree) eval(sample []float64) float64 {
	idx := 0
	for {
		n := t.Nodes[idx]
		if n.Leaf {
			return n.Value
		}
		if sample[n.Feature] <= n.Threshold {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// Load decodes and validates a forest artifact.
func Load(r io.Reader) (*Forest, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrInvalidArtifact, err)
	}
	return NewForest(&a)
}

// LoadFile loads a forest artifact from path.
func LoadFile(path string) (*Forest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model file %s: %w", path, err)
	}
	defer f.Close()

	m, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("loading model file %s: %w", path, err)
	}
	return m, nil
}
