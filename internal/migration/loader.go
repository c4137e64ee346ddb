package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// newChange maps a document key to an empty change of that kind. "rawSql" is
// accepted as an alias of "sql".
var newChange = map[string]func() Change{ //nolint:gochecknoglobals // immutable lookup table
	string(KindCreateTable):  func() Change { return &CreateTable{} },
	string(KindDropTable):    func() Change { return &DropTable{} },
	string(KindAddColumn):    func() Change { return &AddColumn{} },
	string(KindDropColumn):   func() Change { return &DropColumn{} },
	string(KindRenameColumn): func() Change { return &RenameColumn{} },
	string(KindCreateIndex):  func() Change { return &CreateIndex{} },
	string(KindInsert):       func() Change { return &Insert{} },
	string(KindSQL):          func() Change { return &RawSQL{} },
	"rawSql":                 func() Change { return &RawSQL{} },
}

// document is the raw changelog layout:
//
//	databaseChangeLog:
//	  - changeSet: {id, author, comment?, context?, labels?, runInTransaction?, changes, rollback?}
type document struct {
	DatabaseChangeLog []struct {
		ChangeSet *rawChangeSet `yaml:"changeSet"`
	} `yaml:"databaseChangeLog"`
}

type rawChangeSet struct {
	ID               string      `yaml:"id"`
	Author           string      `yaml:"author"`
	Comment          string      `yaml:"comment"`
	Context          string      `yaml:"context"`
	Labels           string      `yaml:"labels"`
	RunInTransaction *bool       `yaml:"runInTransaction"`
	Changes          []yaml.Node `yaml:"changes"`
	Rollback         yaml.Node   `yaml:"rollback"`
}

// LoadFile reads and parses a YAML or JSON changelog file.
func LoadFile(path string) (*Changelog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading changelog file %s: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes a changelog document. JSON documents are accepted because
// they are valid YAML. Every ChangeSet gets its Description and Checksum
// computed here.
func Parse(data []byte, filename string) (*Changelog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidChangelog, filename, err)
	}

	cl := &Changelog{Path: filename}
	seen := make(map[Key]bool)

	for i, item := range doc.DatabaseChangeLog {
		if item.ChangeSet == nil {
			continue
		}

		cs, err := buildChangeSet(item.ChangeSet, filename)
		if err != nil {
			return nil, fmt.Errorf("changeset #%d in %s: %w", i+1, filename, err)
		}

		if seen[cs.Key()] {
			return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateChangeSet, cs.Key(), filename)
		}

		seen[cs.Key()] = true
		cl.ChangeSets = append(cl.ChangeSets, cs)
	}

	return cl, nil
}

func buildChangeSet(raw *rawChangeSet, filename string) (*ChangeSet, error) {
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Author) == "" {
		return nil, fmt.Errorf("%w: id and author are required", ErrInvalidChangelog)
	}

	if len(raw.Changes) == 0 {
		return nil, fmt.Errorf("%w: changeset %s::%s has no changes", ErrInvalidChangelog, raw.ID, raw.Author)
	}

	changes, err := decodeChanges(raw.Changes)
	if err != nil {
		return nil, err
	}

	rollback, err := decodeRollback(&raw.Rollback)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	cs := &ChangeSet{
		ID:               raw.ID,
		Author:           raw.Author,
		Filename:         filename,
		Comment:          raw.Comment,
		Description:      Describe(changes),
		Changes:          changes,
		Rollback:         rollback,
		Contexts:         splitList(raw.Context),
		Labels:           splitList(raw.Labels),
		RunInTransaction: raw.RunInTransaction == nil || *raw.RunInTransaction,
	}
	cs.Checksum = ComputeChecksum(cs)

	return cs, nil
}

func decodeChanges(nodes []yaml.Node) ([]Change, error) {
	changes := make([]Change, 0, len(nodes))

	for i := range nodes {
		c, err := decodeChange(&nodes[i])
		if err != nil {
			return nil, err
		}

		changes = append(changes, c)
	}

	return changes, nil
}

// decodeChange decodes a single-key mapping whose key names the change kind.
func decodeChange(node *yaml.Node) (Change, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, fmt.Errorf("%w: change at line %d must be a single-key mapping", ErrInvalidChangelog, node.Line)
	}

	key := node.Content[0].Value

	factory, ok := newChange[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q at line %d", ErrUnknownChangeKind, key, node.Line)
	}

	c := factory()
	if err := node.Content[1].Decode(c); err != nil {
		return nil, fmt.Errorf("%w: decoding %s at line %d: %w", ErrInvalidChangelog, key, node.Line, err)
	}

	if err := c.Accept(validator{}); err != nil {
		return nil, fmt.Errorf("%s at line %d: %w", key, node.Line, err)
	}

	return c, nil
}

// decodeRollback accepts a list of changes, a single change mapping, or a
// plain SQL string.
func decodeRollback(node *yaml.Node) ([]Change, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.Tag == "!!null" || strings.TrimSpace(node.Value) == "" {
			return nil, nil
		}

		return []Change{&RawSQL{SQL: strings.TrimSpace(node.Value)}}, nil
	case yaml.SequenceNode:
		nodes := make([]yaml.Node, len(node.Content))
		for i, n := range node.Content {
			nodes[i] = *n
		}

		return decodeChanges(nodes)
	case yaml.MappingNode:
		c, err := decodeChange(node)
		if err != nil {
			return nil, err
		}

		return []Change{c}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported rollback at line %d", ErrInvalidChangelog, node.Line)
	}
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
