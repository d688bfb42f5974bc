package schema

import (
	"reflect"
	"testing"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{in: "tagstudio-standard,red-orange", want: Color{Namespace: "tagstudio-standard", Slug: "red-orange"}},
		{in: " tagstudio-neon , neon-blue ", want: Color{Namespace: "tagstudio-neon", Slug: "neon-blue"}},
		{in: "tagstudio-standard", wantErr: true},
		{in: ",blue", wantErr: true},
		{in: "a,b,c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTagEdge_Validate(t *testing.T) {
	if err := (TagEdge{Parent: 10, Child: 5}).Validate(); err != nil {
		t.Errorf("valid edge rejected: %v", err)
	}
	if err := (TagEdge{Parent: 7, Child: 7}).Validate(); err == nil {
		t.Error("self edge accepted")
	}
	if err := (TagEdge{Parent: 0, Child: 5}).Validate(); err == nil {
		t.Error("zero parent accepted")
	}
}

func TestPostData_TagGroups(t *testing.T) {
	post := &PostData{
		PostID:   42,
		FileName: "Danbooru_42.png",
		Tags: map[Category][]string{
			CategoryArtist:  {"someone"},
			CategoryGeneral: {"blue_sky", "cloud"},
			CategoryMeta:    nil,
		},
		Rating: "g",
	}

	got := post.TagGroups()
	want := []TagGroup{
		{Category: CategoryArtist, Tags: []string{"someone"}},
		{Category: CategoryGeneral, Tags: []string{"blue_sky", "cloud"}},
		{Category: CategoryMeta, Tags: []string{"rating:g"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TagGroups() = %+v, want %+v", got, want)
	}
}

func TestSplitTagString(t *testing.T) {
	got := SplitTagString("  blue_sky  cloud\tsky\n")
	want := []string{"blue_sky", "cloud", "sky"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SplitTagString() = %v, want %v", got, want)
	}
	if got := SplitTagString(""); len(got) != 0 {
		t.Errorf("SplitTagString(\"\") = %v, want empty", got)
	}
}
