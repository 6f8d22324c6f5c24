package repository

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/AdityaJha012/cloud-drop/internal/domain/model"
)

func lookup(d bson.D, key string) (any, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestBuildMongoFilter_Empty(t *testing.T) {
	if q := buildMongoFilter(model.Filter{}); len(q) != 0 {
		t.Errorf("пустой фильтр дал %v", q)
	}
}

func TestBuildMongoFilter_OwnerAndID(t *testing.T) {
	q := buildMongoFilter(model.Filter{Owner: "alice", ID: "f-1"})
	if v, _ := lookup(q, "owner"); v != "alice" {
		t.Errorf("owner = %v", v)
	}
	if v, _ := lookup(q, "_id"); v != "f-1" {
		t.Errorf("_id = %v", v)
	}
}

func TestBuildMongoFilter_FilenameIsLiteral(t *testing.T) {
	q := buildMongoFilter(model.Filter{Filename: "a.b(c)"})
	v, ok := lookup(q, "original_filename")
	if !ok {
		t.Fatal("нет условия по original_filename")
	}
	re, ok := v.(primitive.Regex)
	if !ok {
		t.Fatalf("ожидался primitive.Regex, получено %T", v)
	}
	if re.Pattern != `a\.b\(c\)` {
		t.Errorf("pattern = %q", re.Pattern)
	}
	if re.Options != "i" {
		t.Errorf("options = %q, ожидалось i", re.Options)
	}
}

func TestBuildMongoFilter_DateRange(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := buildMongoFilter(model.Filter{CreatedFrom: &from})
	v, ok := lookup(q, "created_at")
	if !ok {
		t.Fatal("нет условия по created_at")
	}
	rng := v.(bson.D)
	if len(rng) != 1 || rng[0].Key != "$gte" {
		t.Errorf("диапазон = %v, ожидался только $gte", rng)
	}

	to := from.Add(time.Hour)
	q = buildMongoFilter(model.Filter{CreatedFrom: &from, CreatedTo: &to, MimeType: "image/png"})
	v, _ = lookup(q, "created_at")
	if rng := v.(bson.D); len(rng) != 2 {
		t.Errorf("диапазон = %v, ожидались $gte и $lte", rng)
	}
	if v, _ := lookup(q, "mime_type"); v != "image/png" {
		t.Errorf("mime_type = %v", v)
	}
}
