package codeload

import (
	"github.com/meigma/codeload/internal/engine"
	"github.com/meigma/codeload/internal/image"
)

// Class is a resolved class definition, bound to the loader that
// resolved it. Classes are cached for the lifetime of that loader;
// two loaders over the same classpath do not share Class identity.
type Class struct {
	def    *image.Class
	loader *Loader
}

// Name returns the fully-qualified class name.
func (c *Class) Name() string {
	return c.def.Name
}

// Call invokes the named method and returns its result.
//
// Resource loads performed by the method resolve through the owning
// loader, so a class from one classpath entry can read resources that
// live in another entry of the same classpath.
func (c *Class) Call(method string) ([]byte, error) {
	return engine.Call(c.def, method, c.loader)
}

// Field returns the value of a static string field.
func (c *Class) Field(name string) (string, bool) {
	v, ok := c.def.Fields[name]
	return v, ok
}

// Methods returns the names of the class's methods in definition order.
func (c *Class) Methods() []string {
	out := make([]string, len(c.def.Methods))
	for i := range c.def.Methods {
		out[i] = c.def.Methods[i].Name
	}
	return out
}
