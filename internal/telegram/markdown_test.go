package telegram

import "testing"

func TestRender(t *testing.T) {
	r := HTMLRenderer{}

	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"a < b && c > d", "a &lt; b &amp;&amp; c &gt; d"},
		{"use `fmt.Println`", "use <code>fmt.Println</code>"},
		{"```x := 1```", "<pre>x := 1</pre>"},
		{"**bold** words", "<b>bold</b> words"},
		{"*italic* words", "<i>italic</i> words"},
		// model output containing markup must not inject tags
		{"<script>alert(1)</script>", "&lt;script&gt;alert(1)&lt;/script&gt;"},
	}
	for _, tc := range cases {
		if got := r.Render(tc.in); got != tc.want {
			t.Errorf("Render(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStrip(t *testing.T) {
	r := HTMLRenderer{}

	in := "<b>bold</b> and <pre>code</pre> and <code>x</code>"
	if got := r.Strip(in); got != "bold and code and x" {
		t.Fatalf("Strip = %q", got)
	}
}
