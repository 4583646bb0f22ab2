package where

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/strelay-cli/strelay/filesystem"
)

func TestWhere(t *testing.T) {
	filesystem.SetMemMapFs()
	defer filesystem.SetOsFs()

	Convey("Where", t, func() {
		Convey("Should honor the config path override", func() {
			So(os.Setenv(EnvConfigPath, filepath.Join(os.TempDir(), "strelay-test")), ShouldBeNil)
			defer os.Unsetenv(EnvConfigPath)

			So(Config(), ShouldEqual, filepath.Join(os.TempDir(), "strelay-test"))
		})

		Convey("Plugins should live under the config directory", func() {
			So(os.Setenv(EnvConfigPath, filepath.Join(os.TempDir(), "strelay-test")), ShouldBeNil)
			defer os.Unsetenv(EnvConfigPath)

			So(Plugins(), ShouldEqual, filepath.Join(Config(), "plugins"))
		})
	})
}
