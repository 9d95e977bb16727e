package animation

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/scenekit/internal/engine/scene"
	"github.com/Faultbox/scenekit/internal/logger"
	"github.com/Faultbox/scenekit/pkg/document"
	"github.com/Faultbox/scenekit/pkg/math"
)

// State of a player.
type State int

// Player states.
const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

// Player plays the clips of one root node, at most one clip at a time.
type Player struct {
	Root  *scene.Node
	Clips []*Clip

	state      State
	active     *action
	onFinished func(*Player, *Clip)
}

type action struct {
	index    int
	clip     *Clip
	time     float32
	speed    float32
	loop     bool
	bindings []binding
	scratch  []float32
}

type binding struct {
	track *Track
	node  *scene.Node
}

// NewPlayer creates an idle player.
func NewPlayer(root *scene.Node, clips []*Clip) *Player {
	return &Player{Root: root, Clips: clips}
}

// State returns the current state.
func (p *Player) State() State {
	return p.state
}

// Playing reports whether a clip is running.
func (p *Player) Playing() bool {
	return p.state == Playing
}

// Active returns the index of the running clip, or -1.
func (p *Player) Active() int {
	if p.active == nil {
		return -1
	}
	return p.active.index
}

// Time returns the local time of the running clip.
func (p *Player) Time() float32 {
	if p.active == nil {
		return 0
	}
	return p.active.time
}

// OnFinished registers a callback fired when a non-looping clip ends.
func (p *Player) OnFinished(fn func(*Player, *Clip)) {
	p.onFinished = fn
}

// Play starts clip index at the given speed, stopping whatever was
// running. Looping clips repeat forever; others play once and return the
// player to idle. An out-of-range index is rejected and nothing changes.
func (p *Player) Play(index int, loop bool, speed float32) error {
	if index < 0 || index >= len(p.Clips) {
		err := fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(p.Clips))
		logger.Warn("animation not played", zap.String("root", p.rootID()), zap.Error(err))
		return err
	}

	p.Stop()
	clip := p.Clips[index]
	a := &action{index: index, clip: clip, speed: speed, loop: loop}
	if speed < 0 {
		a.time = clip.Duration
	}
	a.bind(p.Root)
	p.active = a
	p.state = Playing
	p.apply()
	return nil
}

// Stop halts the running clip and drops its cached bindings.
func (p *Player) Stop() {
	p.active = nil
	p.state = Idle
}

// Update advances the running clip by dt seconds and poses the nodes.
func (p *Player) Update(dt float32) {
	a := p.active
	if a == nil || p.state != Playing {
		return
	}
	a.time += dt * a.speed
	d := a.clip.Duration

	finished := false
	switch {
	case d <= 0:
		a.time = 0
		finished = !a.loop
	case a.loop:
		for a.time >= d {
			a.time -= d
		}
		for a.time < 0 {
			a.time += d
		}
	case a.time >= d:
		a.time = d
		finished = true
	case a.time <= 0 && a.speed < 0:
		a.time = 0
		finished = true
	}

	p.apply()
	if finished {
		p.state = Idle
		if p.onFinished != nil {
			p.onFinished(p, a.clip)
		}
	}
}

func (p *Player) apply() {
	a := p.active
	for _, b := range a.bindings {
		if b.track.Type == TypeString {
			setString(b.node, b.track, b.track.SampleString(a.time))
			continue
		}
		size := b.track.ValueSize
		if cap(a.scratch) < size {
			a.scratch = make([]float32, size)
		}
		out := a.scratch[:size]
		b.track.Sample(a.time, out)
		set(b.node, b.track, out)
	}
	if p.Root != nil {
		p.Root.UpdateMatrixWorld()
	}
}

func (p *Player) rootID() string {
	if p.Root == nil {
		return ""
	}
	return p.Root.UUID
}

func (a *action) bind(root *scene.Node) {
	for _, t := range a.clip.Tracks {
		node := findTarget(root, t.Node)
		if node == nil || !settable(t) {
			logger.Debug("animation track not bound",
				zap.String("clip", a.clip.Name), zap.String("track", t.Name))
			continue
		}
		a.bindings = append(a.bindings, binding{track: t, node: node})
	}
}

func findTarget(root *scene.Node, name string) *scene.Node {
	if root == nil {
		return nil
	}
	if name == "" || root.UUID == name || root.Name == name {
		return root
	}
	if n := root.FindByName(name); n != nil {
		return n
	}
	return root.FindByID(name)
}

func settable(t *Track) bool {
	if t.Type == TypeString {
		return t.Property == "name"
	}
	switch t.Property {
	case "position", "scale":
		return t.ValueSize == 3
	case "quaternion":
		return t.ValueSize == 4
	case "visible":
		return t.ValueSize == 1
	}
	return false
}

func set(n *scene.Node, t *Track, v []float32) {
	switch t.Property {
	case "position":
		n.Position = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	case "scale":
		n.Scale = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	case "quaternion":
		n.Quaternion = quat(v)
	case "visible":
		n.Visible = v[0] != 0
	}
}

func setString(n *scene.Node, t *Track, v string) {
	if t.Property == "name" {
		n.Name = v
	}
}

func quat(v []float32) math.Quat {
	return math.Quat{X: v[0], Y: v[1], Z: v[2], W: v[3]}
}

// Attach creates one idle player per animation root. Roots are looked up
// among the given top-level nodes only; a root that is not found is logged
// and its clips are skipped. Malformed tracks are dropped with a warning.
func Attach(animations map[string][]document.AnimationData, roots []*scene.Node) ([]*Player, error) {
	ids := make([]string, 0, len(animations))
	for id := range animations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var players []*Player
	var errs error
	for _, id := range ids {
		root := topLevel(roots, id)
		if root == nil {
			err := fmt.Errorf("%w: %s", ErrRootNotFound, id)
			logger.Warn("animations skipped", zap.Error(err))
			errs = multierr.Append(errs, err)
			continue
		}

		var clips []*Clip
		for _, data := range animations[id] {
			clip, err := ParseClip(data)
			if err != nil {
				logger.Warn("animation clip partially parsed",
					zap.String("root", id), zap.String("clip", data.Name), zap.Error(err))
				errs = multierr.Append(errs, err)
			}
			clips = append(clips, clip)
		}
		players = append(players, NewPlayer(root, clips))
	}
	return players, errs
}

func topLevel(roots []*scene.Node, id string) *scene.Node {
	for _, r := range roots {
		if r.UUID == id {
			return r
		}
	}
	return nil
}

// Update advances every player.
func Update(players []*Player, dt float32) {
	for _, p := range players {
		p.Update(dt)
	}
}
