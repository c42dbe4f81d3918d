package stacktester

import (
	"errors"
	"testing"

	"github.com/reusee/stacktester/tuples"
)

func TestDecode(t *testing.T) {
	for _, c := range []struct {
		name  string
		op    Op
		flags Flags
	}{
		{"GET", OpGet, 0},
		{"GET_SNAPSHOT", OpGet, FlagSnapshot},
		{"GET_DATABASE", OpGet, FlagDatabase},
		{"GET_TENANT", OpGet, FlagTenant},
		{"GET_RANGE_STARTS_WITH_DATABASE", OpGetRange, FlagStartsWith | FlagDatabase},
		{"GET_RANGE_SELECTOR_SNAPSHOT", OpGetRange, FlagSelector | FlagSnapshot},
		{"CLEAR_RANGE_STARTS_WITH", OpClearRange, FlagStartsWith},
		{"GET_READ_VERSION_SNAPSHOT", OpGetReadVersion, FlagSnapshot},
		{"DIRECTORY_CREATE_SUBSPACE", OpDirectoryCreateSubspace, 0},
		{"TENANT_SET_ACTIVE", OpTenantSetActive, 0},
	} {
		inst, err := Decode(tuples.Tuple{c.name})
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if inst.Op != c.op || inst.Flags != c.flags {
			t.Fatalf("%s: got %v %v", c.name, inst.Op, inst.Flags)
		}
		if inst.Name != c.name {
			t.Fatalf("got %s", inst.Name)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, tuple := range []tuples.Tuple{
		{"BOGUS_OP"},
		{"SET_STARTS_WITH"},
		{"GET_SELECTOR"},
		{"PUSH"},
		{},
		{int64(1)},
	} {
		_, err := Decode(tuple)
		if err == nil {
			t.Fatalf("%v: should fail", tuple)
		}
		if !IsFatal(err) {
			t.Fatalf("%v: not fatal: %v", tuple, err)
		}
	}

	_, err := Decode(tuples.Tuple{"BOGUS_OP"})
	if !errors.Is(err, ErrUnknownOp) {
		t.Fatalf("got %v", err)
	}
}

func TestDecodeArgument(t *testing.T) {
	inst := MustDecode([]byte("PUSH"), []byte("foo"))
	if inst.Op != OpPush || !inst.HasArg {
		t.Fatal()
	}
	if string(inst.Arg.([]byte)) != "foo" {
		t.Fatalf("got %v", inst.Arg)
	}
	if s := inst.String(); s != "PUSH b'foo'" {
		t.Fatalf("got %s", s)
	}

	inst = MustDecode("PUSH", nil)
	if !inst.HasArg || inst.Arg != nil {
		t.Fatal()
	}
}

func TestOpNames(t *testing.T) {
	for op := OpPush; op < numOps; op++ {
		name := op.String()
		if name == "UNKNOWN" {
			t.Fatalf("op %d has no name", op)
		}
		if opsByName[name] != op {
			t.Fatalf("%s maps to %v", name, opsByName[name])
		}
	}
	if (FlagDatabase | FlagSnapshot).String() != "_DATABASE_SNAPSHOT" {
		t.Fatal()
	}
}
