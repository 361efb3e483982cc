package codec_test

import (
	"testing"

	"github.com/quarrylabs/quarry/codec"
)

type sample struct {
	Name  string `json:"name" msgpack:"name"`
	Count int    `json:"count" msgpack:"count"`
}

func TestCodecs_RoundTrip(t *testing.T) {
	for _, c := range []codec.Codec{codec.JSON{}, codec.Msgpack{}} {
		t.Run(c.Name(), func(t *testing.T) {
			in := sample{Name: "resize", Count: 3}

			data, err := c.Marshal(in)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}

			var out sample
			if err := c.Unmarshal(data, &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if out != in {
				t.Errorf("round trip = %+v, want %+v", out, in)
			}
		})
	}
}

func TestGet(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{codec.NameJSON, codec.NameJSON},
		{codec.NameMsgpack, codec.NameMsgpack},
		{"", codec.NameJSON},
		{"unknown", codec.NameJSON},
	}
	for _, tc := range cases {
		if got := codec.Get(tc.in).Name(); got != tc.want {
			t.Errorf("Get(%q).Name() = %q, want %q", tc.in, got, tc.want)
		}
	}
}
