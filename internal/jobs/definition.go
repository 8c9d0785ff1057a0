package jobs

import (
	"fmt"
	"sort"

	"github.com/pelletier/go-toml/v2"

	"gridflow/internal/queue"
)

type definitionDoc struct {
	ID    string         `toml:"id"`
	Label string         `toml:"label"`
	Spec  map[string]any `toml:"spec"`
	Tasks []taskDoc      `toml:"tasks"`
}

type taskDoc struct {
	Name string         `toml:"name"`
	Type string         `toml:"type"`
	Spec map[string]any `toml:"spec"`
}

// ParseDefinition decodes a TOML job definition document.
func ParseDefinition(data []byte) (Definition, error) {
	var doc definitionDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Definition{}, fmt.Errorf("parse job definition: %w", err)
	}

	spec, err := specFromTable(doc.Spec)
	if err != nil {
		return Definition{}, fmt.Errorf("job spec: %w", err)
	}

	def := Definition{
		ID:    doc.ID,
		Label: doc.Label,
		Spec:  spec,
	}
	for _, task := range doc.Tasks {
		taskSpec, err := specFromTable(task.Spec)
		if err != nil {
			return Definition{}, fmt.Errorf("task %q spec: %w", task.Name, err)
		}
		def.Tasks = append(def.Tasks, TaskDefinition{
			Name: task.Name,
			Type: queue.TaskType(task.Type),
			Spec: taskSpec,
		})
	}
	return def, nil
}

// specFromTable converts a TOML table into an ordered spec. TOML tables carry
// no ordering, so parameters sort by name for reproducibility.
func specFromTable(table map[string]any) (queue.Spec, error) {
	if len(table) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	spec := make(queue.Spec, 0, len(names))
	for _, name := range names {
		value, err := specValue(table[name])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", name, err)
		}
		spec = append(spec, queue.Param{Name: name, Value: value})
	}
	return spec, nil
}

func specValue(raw any) (any, error) {
	switch v := raw.(type) {
	case string, int64, float64:
		return v, nil
	case int:
		return int64(v), nil
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			switch item.(type) {
			case string, int, int64, float64:
				list = append(list, queue.EnvValue(item))
			default:
				return nil, fmt.Errorf("unsupported list element %T", item)
			}
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}
