package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/rpchat/internal/db"
)

type eventNode struct {
	db.Event
	Children []*eventNode
}

type treeOptions struct {
	maxDepth  int
	noPayload bool
}

func (a *app) eventTreeCmd() *cobra.Command {
	var (
		opts    treeOptions
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "event-tree [event-id]",
		Short: "Print an event and its descendants as a tree",
		Long: `Print the event tree rooted at event-id. Without an id the newest
context.assembled event is used, showing the last prompt and what came of it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rootID int64
			var err error
			if len(args) == 1 {
				rootID, err = strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid event id %q", args[0])
				}
			} else if rootID, err = db.LatestEventID(a.db, db.EventContextAssembled); err != nil {
				return err
			}

			events, err := db.EventSubtree(a.db, rootID)
			if err != nil {
				return err
			}
			root := buildTree(events, rootID)
			if root == nil {
				return fmt.Errorf("event %d not found", rootID)
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(toJSONEvent(root, 1, opts))
			}
			printTree(cmd.OutOrStdout(), root, "", true, 1, opts)
			return nil
		},
	}
	cmd.Flags().IntVarP(&opts.maxDepth, "depth", "L", 0, "Limit display depth (0 = unlimited)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&opts.noPayload, "no-payload", false, "Hide payload details")
	return cmd
}

// buildTree organizes a flat list of events into a tree rooted at rootID.
func buildTree(events []db.Event, rootID int64) *eventNode {
	byID := make(map[int64]*eventNode, len(events))
	nodes := make([]*eventNode, 0, len(events))
	for _, ev := range events {
		node := &eventNode{Event: ev}
		byID[ev.ID] = node
		nodes = append(nodes, node)
	}
	for _, node := range nodes {
		if node.ParentID == nil || *node.ParentID == node.ID {
			continue
		}
		if parent, ok := byID[*node.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	for _, node := range nodes {
		sort.Slice(node.Children, func(i, j int) bool {
			return node.Children[i].ID < node.Children[j].ID
		})
	}
	return byID[rootID]
}

// printTree renders the tree with box-drawing characters.
func printTree(w io.Writer, node *eventNode, prefix string, isLast bool, depth int, opts treeOptions) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	line := formatEvent(node, opts.noPayload)
	if depth == 1 {
		fmt.Fprintln(w, line)
	} else {
		fmt.Fprintln(w, prefix+connector+line)
	}

	childPrefix := prefix
	if depth > 1 {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		if len(node.Children) > 0 {
			fmt.Fprintln(w, childPrefix+"└── [...]")
		}
		return
	}
	for i, child := range node.Children {
		printTree(w, child, childPrefix, i == len(node.Children)-1, depth+1, opts)
	}
}

// formatEvent renders one line: [id] timestamp  type  key=value ...
func formatEvent(node *eventNode, noPayload bool) string {
	ts := time.Unix(node.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%d] %s  %s", node.ID, ts, node.Type)
	if noPayload {
		return line
	}
	m := decodePayload(node.Payload)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf("  %s=%s", k, formatValue(m[k]))
	}
	return line
}

func decodePayload(payload string) map[string]any {
	if payload == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil
	}
	return m
}

// formatValue renders a payload value, truncating long text.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 80 {
			return fmt.Sprintf("%q", val[:80]+"...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonEvent struct {
	ID        int64       `json:"id"`
	Timestamp int64       `json:"timestamp"`
	EventType string      `json:"event_type"`
	Payload   any         `json:"payload,omitempty"`
	Children  []jsonEvent `json:"children,omitempty"`
}

func toJSONEvent(node *eventNode, depth int, opts treeOptions) jsonEvent {
	je := jsonEvent{ID: node.ID, Timestamp: node.Timestamp, EventType: node.Type}
	if !opts.noPayload {
		if m := decodePayload(node.Payload); m != nil {
			je.Payload = m
		}
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		return je
	}
	for _, child := range node.Children {
		je.Children = append(je.Children, toJSONEvent(child, depth+1, opts))
	}
	return je
}
