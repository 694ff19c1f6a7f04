package stage

// Health summarizes the readiness of a workflow stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a stage as ready to accept work.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a stage as unavailable, with detail explaining why.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
