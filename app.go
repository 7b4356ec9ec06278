package main

import (
	"fmt"
	"os"

	"github.com/MeowSalty/transtat/config"
	"github.com/MeowSalty/transtat/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "加载配置失败：", err)
		os.Exit(2)
	}

	if err := server.Run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
