package cli

import (
	"fmt"
	"io"
	"strings"

	"canvas-backend/domain/core/entities"

	"github.com/fatih/color"
)

var (
	Brand  = color.New(color.FgHiGreen, color.Bold)
	Subtle = color.New(color.FgHiBlack)
	Warn   = color.New(color.FgYellow)
	Info   = color.New(color.FgCyan)
	Bad    = color.New(color.FgRed)
)

// nodeLabel is the one-line text shown for a node
func nodeLabel(n entities.Node) string {
	switch p := n.Payload.(type) {
	case entities.ResponsePayload:
		return p.Query
	case entities.FollowUpPayload:
		return p.Question
	case entities.TopicPayload:
		return "#" + p.Topic
	}
	return n.ID
}

// nodeBody is the answer or explanation of a node, if it has one
func nodeBody(n entities.Node) string {
	switch p := n.Payload.(type) {
	case entities.ResponsePayload:
		return p.Content
	case entities.FollowUpPayload:
		return p.Answer
	case entities.TopicPayload:
		return p.Explanation
	}
	return ""
}

// printTree writes the canvas as an indented tree rooted at every root node
func printTree(out io.Writer, nodes []entities.Node, edges []entities.Edge, showAnswers bool) {
	byID := make(map[string]entities.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	children := make(map[string][]string, len(nodes))
	for _, e := range edges {
		children[e.Source] = append(children[e.Source], e.Target)
	}

	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		n, ok := byID[id]
		if !ok {
			return
		}
		indent := strings.Repeat("  ", depth)
		label := nodeLabel(n)
		switch {
		case n.Kind() == entities.KindTopic:
			fmt.Fprintf(out, "%s%s %s\n", indent, Info.Sprint(label), Subtle.Sprintf("(%.0f, %.0f)", n.Position.X, n.Position.Y))
		case depth == 0:
			fmt.Fprintf(out, "%s%s %s\n", indent, Brand.Sprint(label), Subtle.Sprintf("(%.0f, %.0f)", n.Position.X, n.Position.Y))
		default:
			fmt.Fprintf(out, "%s%s %s %s\n", indent, label, Subtle.Sprintf("[%s]", n.State), Subtle.Sprintf("(%.0f, %.0f)", n.Position.X, n.Position.Y))
		}
		if body := nodeBody(n); showAnswers && body != "" {
			fmt.Fprintf(out, "%s  %s\n", indent, Subtle.Sprint(body))
		}
		for _, child := range children[id] {
			walk(child, depth+1)
		}
	}

	for _, n := range nodes {
		if n.IsRoot() {
			walk(n.ID, 0)
		}
	}
}
