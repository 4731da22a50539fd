// Package decktree turns a collection's nested deck metadata into a flat
// deck ID to deck name lookup.
package decktree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const nameKey = "name"

// hierarchySeparator joins deck path components in the modern decks table.
const hierarchySeparator = "\x1f"

// Node is one element of a deck tree. Objects and arrays are interior nodes
// whose children carry the member key (or array index) in Key. Scalars are
// leaves holding their textual value.
type Node struct {
	Key      string
	Value    string
	IsLeaf   bool
	Children []Node
}

// DeckRecord is a row of the modern decks table.
type DeckRecord struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

// Flatten maps every deck ID in the tree to its name.
//
// A deck is any node below a top-level member whose key parses as an integer;
// that key is the deck ID and the node's "name" leaf is the deck name. Members
// with a non-numeric key are not decks and are skipped. When the same ID is
// named more than once, the last name visited wins.
func Flatten(root Node) map[int64]string {
	decks := make(map[int64]string)
	for _, child := range root.Children {
		id, err := strconv.ParseInt(child.Key, 10, 64)
		if err != nil {
			continue
		}
		collectNames(child, id, decks)
	}
	return decks
}

func collectNames(n Node, id int64, decks map[int64]string) {
	for _, child := range n.Children {
		if child.IsLeaf {
			if child.Key == nameKey {
				decks[id] = child.Value
			}
			continue
		}
		collectNames(child, id, decks)
	}
}

// FromJSON builds a tree from the legacy col.decks JSON blob, which is an
// object keyed by deck ID. Object members are visited in key order.
func FromJSON(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Node{}, fmt.Errorf("failed to decode deck json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Node{}, fmt.Errorf("failed to decode deck json: trailing data")
	}
	return toNode("$", v), nil
}

func toNode(key string, v any) Node {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		n := Node{Key: key, Children: make([]Node, 0, len(keys))}
		for _, k := range keys {
			n.Children = append(n.Children, toNode(k, val[k]))
		}
		return n
	case []any:
		n := Node{Key: key, Children: make([]Node, 0, len(val))}
		for i, item := range val {
			n.Children = append(n.Children, toNode(strconv.Itoa(i), item))
		}
		return n
	case string:
		return Node{Key: key, Value: val, IsLeaf: true}
	case json.Number:
		return Node{Key: key, Value: val.String(), IsLeaf: true}
	case bool:
		return Node{Key: key, Value: strconv.FormatBool(val), IsLeaf: true}
	default:
		// null carries no value and never names a deck
		return Node{Key: key}
	}
}

// FromDecks builds the same tree shape from rows of the modern decks table,
// rewriting the stored hierarchy separator to "::".
func FromDecks(records []DeckRecord) Node {
	root := Node{Key: "$", Children: make([]Node, 0, len(records))}
	for _, r := range records {
		root.Children = append(root.Children, Node{
			Key: strconv.FormatInt(r.ID, 10),
			Children: []Node{{
				Key:    nameKey,
				Value:  strings.ReplaceAll(r.Name, hierarchySeparator, "::"),
				IsLeaf: true,
			}},
		})
	}
	return root
}
