// 版权所有 2024 AgentGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 按配置打开 GORM 数据库并管理其连接池，供 SQL 记忆存储使用。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、WithTransaction()、Close()。
  - PoolConfig：最大空闲/打开连接数、连接生命周期与健康检查间隔。

Open 根据 config.DatabaseConfig.Driver 选择 postgres、mysql 或纯 Go
实现的 sqlite 方言。
*/
package database
