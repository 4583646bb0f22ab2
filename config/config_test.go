package config

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/filesystem"
	"github.com/strelay-cli/strelay/key"
)

func TestSetup(t *testing.T) {
	filesystem.SetMemMapFs()
	defer filesystem.SetOsFs()

	Convey("Config Setup", t, func() {
		Convey("Should initialize without error", func() {
			err := Setup()
			So(err, ShouldBeNil)
		})

		Convey("Should have default values populated", func() {
			So(Setup(), ShouldBeNil)
			for name := range Default {
				So(viper.Get(name), ShouldNotBeNil)
			}
		})

		Convey("Should expose spec defaults", func() {
			So(Setup(), ShouldBeNil)
			So(viper.GetInt(key.HLSLiveEdge), ShouldEqual, 3)
			So(viper.GetInt(key.HLSSegmentAttempts), ShouldEqual, 3)
			So(viper.GetInt(key.HLSSegmentThreads), ShouldEqual, 1)
			So(viper.GetInt(key.HTTPTimeout), ShouldEqual, 60)
			So(viper.GetStringSlice(key.StreamDefault), ShouldResemble, []string{"best"})
		})

		Convey("EnvKeyReplacer should convert dots to underscores", func() {
			result := EnvKeyReplacer.Replace("hls.live.edge")
			So(result, ShouldEqual, "hls_live_edge")
		})
	})
}
