package queue

// Group registers handlers under a shared name prefix, e.g. Group("c")
// addresses its handlers as "c.<name>".
type Group struct {
	host   *Host
	prefix string
}

func (h *Host) Group(prefix string) *Group {
	return &Group{host: h, prefix: prefix}
}

func (g *Group) sub(name string) string {
	if g.prefix == "" {
		return name
	}
	if name == "" {
		return g.prefix
	}
	return g.prefix + "." + name
}

func (g *Group) Group(suffix string) *Group {
	return &Group{host: g.host, prefix: g.sub(suffix)}
}

func (g *Group) Register(name string, fn HandlerFunc) { g.host.Register(g.sub(name), fn) }
