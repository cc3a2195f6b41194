// Copyright (c) VoiceFlow Authors.
// Licensed under the MIT License.

/*
包 database 负责打开 GORM 连接并管理其连接池，供会话 SQL 持久化后端使用。

# 核心类型

  - Config：驱动（postgres / mysql / sqlite）、DSN 与连接池参数。
  - Manager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、Stats()、
    Close() 以及带退避重试的事务执行 WithRetry。

sqlite 使用纯 Go 实现（glebarez/sqlite），不依赖 cgo。
*/
package database
