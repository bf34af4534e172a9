package cache

import (
	"github.com/normgraph/normgraph/policy"
	"github.com/normgraph/normgraph/value"
)

// leaf builds a scalar field selection.
func leaf(name string) *Field {
	return &Field{Name: name}
}

// sel builds an object field selection with a declared result type.
func sel(name, typ string, subs ...*Field) *Field {
	return &Field{Name: name, Type: typ, Selections: subs}
}

// selArgs is sel with arguments.
func selArgs(name, typ string, args value.Object, subs ...*Field) *Field {
	return &Field{Name: name, Type: typ, Args: args, Selections: subs}
}

// userRequest selects user { id, name } at the root.
func userRequest() *Request {
	return &Request{
		Fields: []*Field{
			sel("user", "User", leaf("id"), leaf("name")),
		},
	}
}

func userData(id, name string) value.Object {
	return value.Object{
		"user": value.Object{
			"id":   value.String(id),
			"name": value.String(name),
		},
	}
}

// userID is the entity identity the default "id" key policy produces.
func userID(id string) value.EntityID {
	return value.EntityID(`User:{"id":"` + id + `"}`)
}

// appendFeedConfig configures Query.feed as an accumulating list slot.
func appendFeedConfig() policy.Config {
	return policy.Config{
		"Query": {
			Fields: map[string]policy.FieldPolicy{
				"feed": {
					KeyArgs: policy.NoKeyArgs(),
					Merge:   policy.MergeWith(policy.AppendMerge()),
				},
			},
		},
	}
}
