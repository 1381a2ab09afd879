package pg

import "embed"

// Migrations 样本归档表结构迁移
//
//go:embed migrations/*.sql
var Migrations embed.FS
