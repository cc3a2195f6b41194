// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 migration 管理会话持久化表（voiceflow_sessions）的 Schema 迁移，
支持 PostgreSQL 与 MySQL，基于 golang-migrate 实现。
SQLite 部署由 GORM AutoMigrate 建表。

迁移 SQL 通过 embed.FS 内嵌在二进制中，按数据库方言分目录存放。
命令行入口为 `voiceflow migrate up|down|version|status`，
也可以改用 persistence.sql.auto_migrate 由 GORM 自动建表。

# 核心类型

  - Migrator：封装 golang-migrate 实例与数据库连接，
    提供 Up / Down / Version / Status / Close。
  - DatabaseType：数据库类型枚举（postgres / mysql）。
  - Run：面向终端的子命令分发，输出格式化状态。
*/
package migration
