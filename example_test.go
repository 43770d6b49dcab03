package gridwire_test

import (
	"fmt"
	"reflect"

	"github.com/kungfusheep/gridwire"
)

// resolver is the simplest possible gridwire.ClassResolver: a fixed name to
// reflect.Type lookup table, built once for the types an application knows
// how to unmarshal.
type resolver map[string]reflect.Type

func (r resolver) Resolve(name string) (reflect.Type, error) {
	if t, ok := r[name]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

func newResolver(values ...any) resolver {
	r := make(resolver, len(values))
	for _, v := range values {
		t := reflect.TypeOf(v)
		name := t.String()
		if t.PkgPath() != "" {
			name = t.PkgPath() + "." + t.Name()
		}
		r[name] = t
	}
	return r
}

func Example() {
	type Person struct {
		Name string
		Age  int32
		Tags []string
	}

	alice := Person{Name: "Alice", Age: 32, Tags: []string{"engineer", "go"}}

	data, err := gridwire.Marshal(&alice)
	if err != nil {
		fmt.Println("marshal error:", err)
		return
	}

	out, err := gridwire.Unmarshal(data, newResolver(Person{}))
	if err != nil {
		fmt.Println("unmarshal error:", err)
		return
	}

	decoded := out.(*Person)
	fmt.Printf("decoded %s, age %d, tags %v\n", decoded.Name, decoded.Age, decoded.Tags)

	// Output:
	// decoded Alice, age 32, tags [engineer go]
}
