package store

import (
	"errors"
	"testing"
)

func TestSettings_GetSet(t *testing.T) {
	repo := newTestStore(t).Settings()

	if _, err := repo.Get(SettingDevice); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if err := repo.Set(SettingDevice, "cam:0"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(SettingDevice, "cam:2"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}

	got, err := repo.Get(SettingDevice)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "cam:2" {
		t.Errorf("Get() = %q, want cam:2", got)
	}
}

func TestSettings_Defaults(t *testing.T) {
	repo := newTestStore(t).Settings()

	got, err := repo.GetDefault(SettingPreset, "default")
	if err != nil || got != "default" {
		t.Errorf("GetDefault() = %q, %v; want default", got, err)
	}

	tests := []struct {
		name   string
		stored string
		def    bool
		want   bool
	}{
		{name: "unset uses default", stored: "", def: true, want: true},
		{name: "stored false", stored: "false", def: true, want: false},
		{name: "stored true", stored: "true", def: false, want: true},
		{name: "malformed uses default", stored: "maybe", def: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.Delete(SettingFollowing)
			if tt.stored != "" {
				if err := repo.Set(SettingFollowing, tt.stored); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
			}
			got, err := repo.GetBool(SettingFollowing, tt.def)
			if err != nil {
				t.Fatalf("GetBool() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("GetBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSettings_DeleteAndAll(t *testing.T) {
	repo := newTestStore(t).Settings()

	repo.Set(SettingDevice, "cam:1")
	repo.SetBool(SettingFollowing, false)

	all, err := repo.All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(all) != 2 || all[SettingDevice] != "cam:1" || all[SettingFollowing] != "false" {
		t.Errorf("All() = %v", all)
	}

	if err := repo.Delete(SettingDevice); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(SettingDevice); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}
