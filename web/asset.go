package web

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var dist embed.FS

// Assets 控制台前端构建产物，echo 的静态文件中间件从这里读取。
// dist 是编译期嵌入的，取子目录失败只可能是构建产物缺失。
func Assets() fs.FS {
	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}
	return sub
}
