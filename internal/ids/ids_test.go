package ids

import "testing"

func TestNewIsSortableAndValid(t *testing.T) {
	prev := ""
	for i := 0; i < 100; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("New produced invalid id %q", id)
		}
		if id <= prev {
			t.Fatalf("ids not increasing: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "abc", "01HZX3!!!!!!!!!!!!!!!!!!!!"} {
		if Valid(s) {
			t.Fatalf("Valid(%q) = true", s)
		}
	}
}
