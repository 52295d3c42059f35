package classify

import "github.com/punchcam/backend/internal/pose"

// History is the rolling window of recent frames behind the motion rules
// (hook, uppercut, dodge). One History per connection; never shared.
type History struct {
	frames []pose.Frame
	size   int
}

func NewHistory(size int) *History {
	if size < 2 {
		size = 2
	}
	return &History{frames: make([]pose.Frame, 0, size), size: size}
}

// Push appends a frame, evicting the oldest once the window is full.
func (h *History) Push(f pose.Frame) {
	if len(h.frames) == h.size {
		copy(h.frames, h.frames[1:])
		h.frames[len(h.frames)-1] = f
		return
	}
	h.frames = append(h.frames, f)
}

func (h *History) Len() int { return len(h.frames) }

// Oldest returns the earliest retained frame.
func (h *History) Oldest() (pose.Frame, bool) {
	if len(h.frames) == 0 {
		return pose.Frame{}, false
	}
	return h.frames[0], true
}

func (h *History) Reset() {
	h.frames = h.frames[:0]
}
