package kuwo

import "testing"

func TestParseSearch(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		ok      bool
	}{
		{name: "abslist", payload: `{"abslist":[{"MUSICRID":"MUSIC_228908","SONGNAME":"晴天"}]}`, want: "228908", ok: true},
		{name: "single quoted", payload: `{'abslist':[{'MUSICRID':'MUSIC_42'}]}`, want: "42", ok: true},
		{name: "apostrophe in valid json", payload: `{"abslist":[{"SONGNAME":"Don't Cry","MUSICRID":"MUSIC_5150"}]}`, want: "5150", ok: true},
		{name: "apostrophe in single quoted", payload: `{'abslist':[{'SONGNAME':'Don't Cry','ARTIST':'Guns N' Roses','MUSICRID':'MUSIC_5150'}]}`, want: "5150", ok: true},
		{name: "double quote in single quoted", payload: `{'abslist':[{'SONGNAME':'12" mix','MUSICRID':'MUSIC_8'}]}`, want: "8", ok: true},
		{name: "single quoted empty values", payload: `{'abslist':[{'MUSICRID':'', 'DC_TARGETID' : '77'}]}`, want: "77", ok: true},
		{name: "skips empty rid", payload: `{"abslist":[{"MUSICRID":""},{"MUSICRID":"MUSIC_7"}]}`, want: "7", ok: true},
		{name: "dc target id", payload: `{"abslist":[{"DC_TARGETID":"99"}]}`, want: "99", ok: true},
		{name: "data list numeric rid", payload: `{"data":{"list":[{"rid":31337}]}}`, want: "31337", ok: true},
		{name: "empty list", payload: `{"abslist":[]}`, ok: false},
		{name: "wrong shape", payload: `{"abslist":"nope"}`, ok: false},
		{name: "garbage rid", payload: `{"abslist":[{"MUSICRID":"MUSIC_"}]}`, ok: false},
		{name: "not json", payload: `<html>`, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSearch([]byte(tt.payload))
			if got != tt.want || ok != tt.ok {
				t.Fatalf("ParseSearch() = (%q,%v), want (%q,%v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
