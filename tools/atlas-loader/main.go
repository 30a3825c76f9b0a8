// 輸出 models 對應的 DDL，供 atlas 的 external_schema 使用
//
//	data "external_schema" "gorm" {
//	  program = ["go", "run", "-mod=mod", "./tools/atlas-loader"]
//	}
package main

import (
	"fmt"
	"io"
	"os"

	"ariga.io/atlas-provider-gorm/gormschema"

	"imagine/models"
)

func main() {
	stmts, err := gormschema.New("postgres").Load(models.All()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load gorm schema: %v\n", err)
		os.Exit(1)
	}
	_, _ = io.WriteString(os.Stdout, stmts)
}
