package manifest

import "fmt"

func (c *Config) validateRoutes() error {
	seen := make(map[string]int, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		if err := r.normalize(); err != nil {
			return fmt.Errorf("route %d: %w", i, err)
		}
		if err := r.validate(); err != nil {
			return fmt.Errorf("route %d (%s): %w", i, r.Path, err)
		}
		if c.Reserved(r.Path) {
			return fmt.Errorf("route %d (%s): path is reserved", i, r.Path)
		}
		if j, dup := seen[r.Path]; dup {
			return fmt.Errorf("route %d (%s): duplicates route %d", i, r.Path, j)
		}
		seen[r.Path] = i
	}
	return nil
}
