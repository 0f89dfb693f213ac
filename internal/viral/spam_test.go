package viral

import "testing"

func TestIsSpam(t *testing.T) {
	tests := []struct {
		name string
		in   SpamInput
		want bool
	}{
		{
			name: "clean signal",
			in:   SpamInput{Title: "I tried protein coffee for a week", RawExcerpt: "it was fine"},
			want: false,
		},
		{
			name: "blocklist phrase in title",
			in:   SpamInput{Title: "Huge GIVEAWAY for my followers"},
			want: true,
		},
		{
			name: "blocklist phrase in excerpt only",
			in:   SpamInput{Title: "Check this out", RawExcerpt: "dm me for details"},
			want: true,
		},
		{
			name: "short all caps passes",
			in:   SpamInput{Title: "SHORT"},
			want: false,
		},
		{
			name: "long all caps fails",
			in:   SpamInput{Title: "THIS ENTIRE TITLE IS SHOUTING AT EVERYONE"},
			want: true,
		},
		{
			name: "all caps with digits still fails",
			in:   SpamInput{Title: "BUY NOW 50 PERCENT OFF EVERYTHING"},
			want: true,
		},
		{
			name: "special char density over threshold",
			in:   SpamInput{Title: "wow!!! $$$ deal!!"},
			want: true,
		},
		{
			name: "sparse punctuation passes",
			in:   SpamInput{Title: "is creatine worth it? an honest review"},
			want: false,
		},
		{
			name: "empty title",
			in:   SpamInput{Title: ""},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSpam(tt.in); got != tt.want {
				t.Errorf("IsSpam(%+v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsSpamPure(t *testing.T) {
	in := SpamInput{Title: "I tried protein coffee for a week"}
	for i := 0; i < 3; i++ {
		if IsSpam(in) {
			t.Fatal("IsSpam flipped on repeated calls")
		}
	}
}
