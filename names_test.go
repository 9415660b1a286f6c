package dbus

import (
	"strings"
	"testing"
)

func TestBusNames(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"org.freedesktop.DBus", false},
		{"com.example.my-service", false},
		{"a.b", false},
		{"_a._b", false},
		{":1.42", false},
		{":1.2.3", false},
		{"a." + strings.Repeat("b", 253), false},

		{"", true},
		{"org", true},
		{"org..DBus", true},
		{".org.DBus", true},
		{"org.DBus.", true},
		{"org.1DBus", true},
		{"org.DBus!", true},
		{":1", true},
		{"a." + strings.Repeat("b", 254), true},
	}
	for _, tc := range tests {
		err := validBusName(tc.in)
		if gotErr := err != nil; gotErr != tc.wantErr {
			t.Errorf("validBusName(%q) = %v, want err=%v", tc.in, err, tc.wantErr)
		}
	}
}

func TestInterfaceNames(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"org.freedesktop.DBus.Properties", false},
		{"a.b", false},
		{"a_1.b_2", false},

		{"", true},
		{"org", true},
		{"org.free-desktop", true},
		{"org.1desktop", true},
		{"org..desktop", true},
		{":1.42", true},
	}
	for _, tc := range tests {
		err := validInterfaceName(tc.in)
		if gotErr := err != nil; gotErr != tc.wantErr {
			t.Errorf("validInterfaceName(%q) = %v, want err=%v", tc.in, err, tc.wantErr)
		}
	}
}

func TestMemberNames(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"Hello", false},
		{"get_thing2", false},
		{"_", false},

		{"", true},
		{"2things", true},
		{"Get.Thing", true},
		{"Get-Thing", true},
		{strings.Repeat("a", 256), true},
	}
	for _, tc := range tests {
		err := validMemberName(tc.in)
		if gotErr := err != nil; gotErr != tc.wantErr {
			t.Errorf("validMemberName(%q) = %v, want err=%v", tc.in, err, tc.wantErr)
		}
	}
}
