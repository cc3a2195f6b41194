/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动与优雅关闭。

Manager 封装 net/http.Server，VoiceFlow 用它分别运行 REST API 服务
和 Prometheus metrics 服务。Config.TLS 非空时监听器包装为 TLS。
*/
package server
