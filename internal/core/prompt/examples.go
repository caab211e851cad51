package prompt

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// FewShotExample is one demonstration pair shown to the model: a sample text
// and the tags a good answer would produce, in order.
type FewShotExample struct {
	Text string   `yaml:"text"`
	Tags []string `yaml:"tags"`
}

type ExampleLoadError struct {
	Path string
	Err  error
}

func (e *ExampleLoadError) Error() string {
	return fmt.Sprintf("failed to load examples from %s: %v", e.Path, e.Err)
}

func (e *ExampleLoadError) Unwrap() error {
	return e.Err
}

// ExampleStore loads few-shot example files and memoizes them per path for
// the lifetime of the process. Example files are treated as immutable once
// loaded; editing one requires a restart.
type ExampleStore struct {
	mu     sync.Mutex
	loaded map[string][]FewShotExample
}

func NewExampleStore() *ExampleStore {
	return &ExampleStore{loaded: make(map[string][]FewShotExample)}
}

func (s *ExampleStore) Load(path string) ([]FewShotExample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if examples, ok := s.loaded[path]; ok {
		return examples, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExampleLoadError{Path: path, Err: err}
	}

	var examples []FewShotExample
	if err := yaml.Unmarshal(data, &examples); err != nil {
		return nil, &ExampleLoadError{Path: path, Err: err}
	}

	for i, example := range examples {
		if strings.TrimSpace(example.Text) == "" {
			return nil, &ExampleLoadError{Path: path, Err: fmt.Errorf("example %d has no text", i)}
		}
		if len(example.Tags) == 0 {
			return nil, &ExampleLoadError{Path: path, Err: fmt.Errorf("example %d has no tags", i)}
		}
		for _, tag := range example.Tags {
			if strings.TrimSpace(tag) == "" {
				return nil, &ExampleLoadError{Path: path, Err: fmt.Errorf("example %d has an empty tag", i)}
			}
		}
	}

	s.loaded[path] = examples
	return examples, nil
}
