package app

import (
	"fmt"
	"strings"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモード。引数なしの場合もこれになる。
	CommandServe Command = "serve"
	// CommandWorker は期限切れ登録の削除をREAPER_INTERVAL間隔で実行し続けるモード。
	CommandWorker Command = "worker"
	// CommandMigrate は未適用のマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandReap は期限切れ登録の削除を1回だけ実行して終了する。cronからの起動用。
	CommandReap Command = "reap"
	// CommandHealthcheck はローカルの/healthを叩いて終了する。
	// distrolessイメージのDocker HEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

// commands はサポートするサブコマンドの一覧（usage表示順）。
var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandReap, CommandHealthcheck}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空の場合はCommandServeを返す。2番目以降の引数は無視する。
// 未知のサブコマンドはエラーにする（打ち間違いでサーバーが起動しないように）。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (usage: %s)", args[0], usage())
}

func usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "storefront [" + strings.Join(names, "|") + "]"
}
