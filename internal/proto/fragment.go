package proto

// Node identifies the graph state that produced a fragment.
type Node uint8

// Graph states. NodeStart marks fragments emitted before any model runs (the
// user's own request).
const (
	NodeStart Node = iota
	NodeAgent
	NodeTools
	NodeFinal
)

func (n Node) String() string {
	switch n {
	case NodeStart:
		return "start"
	case NodeAgent:
		return "agent"
	case NodeTools:
		return "tools"
	case NodeFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Fragment is one streamed piece of a message.
//
// Content holds text tokens; ToolCallDelta holds streamed tool-call argument
// tokens, which never count as content. Node is stamped by the graph on every
// fragment it relays.
type Fragment struct {
	MessageID     string
	Role          Role
	Content       string
	ToolCallDelta string
	Node          Node
}

// Emitter receives fragments in generation order.
type Emitter func(Fragment)

// Discard is an Emitter that drops every fragment.
func Discard(Fragment) {}
