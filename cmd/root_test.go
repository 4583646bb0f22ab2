package cmd

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
	"github.com/strelay-cli/strelay/key"
)

func TestRootFlags(t *testing.T) {
	Convey("Given the root command", t, func() {
		Convey("The segment timeout flag is bound to its option", func() {
			flag := rootCmd.Flags().Lookup("hls-timeout")
			So(flag, ShouldNotBeNil)

			So(rootCmd.Flags().Set("hls-timeout", "7.5"), ShouldBeNil)
			So(viper.GetFloat64(key.HLSTimeout), ShouldEqual, 7.5)
		})

		Convey("An immediate version check is available", func() {
			So(rootCmd.Flags().Lookup("version-check"), ShouldNotBeNil)
		})

		Convey("Explicit cookies are bound to their option", func() {
			So(rootCmd.Flags().Set("http-cookie", "session=token"), ShouldBeNil)
			So(viper.GetStringMapString(key.HTTPCookies), ShouldResemble, map[string]string{"session": "token"})
		})
	})
}
