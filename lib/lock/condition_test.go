package lock

import (
	"reflect"
	"testing"
)

func TestParseIfHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   []Condition
	}{
		{
			name:   "empty header",
			header: "",
			want:   nil,
		},
		{
			name:   "single token",
			header: "(<opaquelocktoken:abc>)",
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: true, Token: "opaquelocktoken:abc"}}},
			},
		},
		{
			name:   "negated token",
			header: "(Not <opaquelocktoken:abc>)",
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: false, Token: "opaquelocktoken:abc"}}},
			},
		},
		{
			name:   "not is case insensitive",
			header: "(nOT <opaquelocktoken:abc>)",
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: false, Token: "opaquelocktoken:abc"}}},
			},
		},
		{
			name:   "token and etag",
			header: `(<opaquelocktoken:abc> ["etag1"])`,
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: true, Token: "opaquelocktoken:abc", ETag: `"etag1"`}}},
			},
		},
		{
			name:   "etag only",
			header: `(["etag1"])`,
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: true, ETag: `"etag1"`}}},
			},
		},
		{
			name:   "untagged groups extend the previous condition",
			header: "(<opaquelocktoken:a>) (<opaquelocktoken:b>)",
			want: []Condition{
				{Tokens: []ConditionToken{
					{Positive: true, Token: "opaquelocktoken:a"},
					{Positive: true, Token: "opaquelocktoken:b"},
				}},
			},
		},
		{
			name:   "tagged groups start new conditions",
			header: "</a> (<opaquelocktoken:a>) (<opaquelocktoken:b>) </b> (Not <opaquelocktoken:c>)",
			want: []Condition{
				{URI: "/a", Tokens: []ConditionToken{
					{Positive: true, Token: "opaquelocktoken:a"},
					{Positive: true, Token: "opaquelocktoken:b"},
				}},
				{URI: "/b", Tokens: []ConditionToken{
					{Positive: false, Token: "opaquelocktoken:c"},
				}},
			},
		},
		{
			name:   "absolute uri tag",
			header: "<http://example.com/dav/file.txt> (<opaquelocktoken:a>)",
			want: []Condition{
				{URI: "http://example.com/dav/file.txt", Tokens: []ConditionToken{{Positive: true, Token: "opaquelocktoken:a"}}},
			},
		},
		{
			name:   "garbage between groups is skipped",
			header: "xx (<opaquelocktoken:a>) junk [ (broken (<opaquelocktoken:b>)",
			want: []Condition{
				{Tokens: []ConditionToken{
					{Positive: true, Token: "opaquelocktoken:a"},
					{Positive: true, Token: "opaquelocktoken:b"},
				}},
			},
		},
		{
			name:   "uri without space before group is not a tag",
			header: "</a>(<opaquelocktoken:a>)",
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: true, Token: "opaquelocktoken:a"}}},
			},
		},
		{
			name:   "lazy uri tag extends over an unmatched group",
			header: "</a> (bad) </b> (<opaquelocktoken:a>)",
			want: []Condition{
				{URI: "/a> (bad) </b", Tokens: []ConditionToken{{Positive: true, Token: "opaquelocktoken:a"}}},
			},
		},
		{
			name:   "empty group",
			header: "()",
			want: []Condition{
				{Tokens: []ConditionToken{{Positive: true}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseIfHeader(tt.header)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseIfHeader(%q) = %+v, want %+v", tt.header, got, tt.want)
			}
		})
	}
}

func TestParseIfHeaderIsPure(t *testing.T) {
	header := "</a> (<opaquelocktoken:a> [\"e\"]) (Not <opaquelocktoken:b>)"
	first := ParseIfHeader(header)
	second := ParseIfHeader(header)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("parsing the same header twice differs: %+v vs %+v", first, second)
	}
}
